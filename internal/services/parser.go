package services

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/voicetory/apiserver/types"
)

// Command is a parsed inventory mutation.
type Command struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
	Product  string `json:"product"`
}

type commandPattern struct {
	action  string
	pattern *regexp.Regexp
}

// Tried in order; the first match wins.
var commandPatterns = []commandPattern{
	{action: types.ActionAdd, pattern: regexp.MustCompile(`^add\s+(\d+)\s+(.+)`)},
	{action: types.ActionSell, pattern: regexp.MustCompile(`^sold\s+(\d+)\s+(.+)`)},
	{action: types.ActionDelete, pattern: regexp.MustCompile(`^delete\s+(\d+)\s+(.+)`)},
}

var commandExamples = []string{
	"Add 10 packets of milk",
	"Sold 5 soaps",
	"Delete 2 bottles of oil",
	"Add 25 apples",
	"Sold 3 bottles of water",
	"Delete 1 chocolate bar",
}

// CommandExamples returns example commands for client display.
func CommandExamples() []string {
	return append([]string(nil), commandExamples...)
}

// ParseCommand turns free text such as "Add 10 packets of milk" into a Command.
func ParseCommand(text string) (Command, error) {
	text = strings.ToLower(strings.TrimSpace(text))

	for _, p := range commandPatterns {
		match := p.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		quantity, err := strconv.Atoi(match[1])
		if err != nil {
			return Command{}, parseError("Invalid quantity format")
		}
		if quantity <= 0 {
			return Command{}, parseError("Quantity must be greater than 0")
		}
		product := strings.TrimSpace(match[2])
		if product == "" {
			return Command{}, parseError("Product name is required")
		}

		return Command{
			Action:   p.action,
			Quantity: quantity,
			Product:  product,
		}, nil
	}

	return Command{}, parseError("Invalid command format. Use: 'Add X [product]', 'Sold X [product]', or 'Delete X [product]'")
}

func parseError(message string) *ParseError {
	return &ParseError{Message: message, Examples: CommandExamples()}
}
