package riverchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/putto11262002/riverchat/core"
	"gopkg.in/yaml.v3"
)

// SeedFile lists the system rooms that exist on every deployment.
type SeedFile struct {
	Rooms []SeedRoom `yaml:"rooms"`
}

type SeedRoom struct {
	Name        string        `yaml:"name"`
	DisplayName string        `yaml:"display_name"`
	Description string        `yaml:"description,omitempty"`
	Type        core.RoomType `yaml:"type"`
}

func (r SeedRoom) input() core.RoomCreateInput {
	return core.RoomCreateInput{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		Type:        r.Type,
	}
}

func DecodeSeedFile(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed SeedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, room := range seed.Rooms {
		if err := validateInput(room.input()); err != nil {
			return nil, fmt.Errorf("seed room %d (%s): %w", i, room.Name, err)
		}
	}
	return &seed, nil
}

// SeedRooms creates the system rooms that do not exist yet. System rooms have
// no creator and start without members. It returns the number of rooms created.
func SeedRooms(ctx context.Context, rooms core.RoomDirectory, seed *SeedFile, logger *slog.Logger) (int, error) {
	created := 0
	for _, room := range seed.Rooms {
		existing, err := rooms.GetRoomByName(ctx, room.Name)
		if err != nil {
			return created, fmt.Errorf("GetRoomByName: %w", err)
		}
		if existing != nil {
			continue
		}
		if _, err := rooms.CreateRoom(ctx, nil, room.input()); err != nil {
			if errors.Is(err, core.ErrConflictedRoom) {
				continue
			}
			return created, fmt.Errorf("CreateRoom(%s): %w", room.Name, err)
		}
		logger.Info("seeded room", slog.String("room", room.Name), slog.String("type", string(room.Type)))
		created++
	}
	return created, nil
}

func seedRoomsFromFile(ctx context.Context, rooms core.RoomDirectory, file string, logger *slog.Logger) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	seed, err := DecodeSeedFile(f)
	if err != nil {
		return err
	}
	_, err = SeedRooms(ctx, rooms, seed, logger)
	return err
}
