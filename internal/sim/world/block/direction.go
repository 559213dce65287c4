package block

import "fmt"

// Direction names one of the six axis-aligned faces of a cell.
type Direction uint8

const (
	Up    Direction = iota // +y
	Down                   // -y
	North                  // +z
	South                  // -z
	East                   // +x
	West                   // -x
)

// Directions lists the faces in neighbor order: North, South, East, West, Up, Down.
var Directions = [6]Direction{North, South, East, West, Up, Down}

var directionNames = [...]string{
	Up:    "up",
	Down:  "down",
	North: "north",
	South: "south",
	East:  "east",
	West:  "west",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// Offset returns the unit step (dx, dy, dz) for the face.
func (d Direction) Offset() (dx, dy, dz int) {
	switch d {
	case Up:
		return 0, 1, 0
	case Down:
		return 0, -1, 0
	case North:
		return 0, 0, 1
	case South:
		return 0, 0, -1
	case East:
		return 1, 0, 0
	default:
		return -1, 0, 0
	}
}

func ParseDirection(s string) (Direction, error) {
	for i, n := range directionNames {
		if n == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if int(d) >= len(directionNames) {
		return nil, fmt.Errorf("unknown direction %d", uint8(d))
	}
	return []byte(directionNames[d]), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
