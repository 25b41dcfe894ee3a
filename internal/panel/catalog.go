package panel

import (
	"fmt"
	"strings"

	"github.com/chxlky/trello-webhook-panel/internal/models"
)

// ScopeAll targets every board in the catalog.
const ScopeAll = "all"

// Catalog is a read-only snapshot of the account's boards and their lists.
type Catalog struct {
	boards []models.Board
	byID   map[string]int
}

func NewCatalog(boards []models.Board) *Catalog {
	c := &Catalog{boards: boards, byID: make(map[string]int, len(boards))}
	for i, b := range boards {
		c.byID[b.ID] = i
	}
	return c
}

func (c *Catalog) Boards() []models.Board {
	return c.boards
}

func (c *Catalog) Len() int {
	return len(c.boards)
}

func (c *Catalog) Board(id string) (models.Board, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Board{}, false
	}
	return c.boards[i], true
}

// Lists returns the list names of the board with the given id.
func (c *Catalog) Lists(id string) []string {
	b, _ := c.Board(id)
	return b.Lists
}

// Resolve turns a target scope into the boards it covers. An empty scope means all boards. A scope
// that is not a board id is tried as a board name, which only resolves when exactly one board has it.
func (c *Catalog) Resolve(scope string) ([]models.Board, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.EqualFold(scope, ScopeAll) {
		return c.boards, nil
	}
	if b, ok := c.Board(scope); ok {
		return []models.Board{b}, nil
	}

	var matches []models.Board
	for _, b := range c.boards {
		if b.Name == scope {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Kind: "board", Key: scope}
	case 1:
		return matches, nil
	default:
		return nil, &ValidationError{
			Field:  "board",
			Reason: fmt.Sprintf("%d boards are named %q, select one by id", len(matches), scope),
		}
	}
}
