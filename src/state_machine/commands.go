package state_machine

import (
	"fmt"
	"strings"

	"raftkv/src/storage"
)

// Client commands use the same grammar the log replicates:
//   GET <key> / SET <key> <value> / DEL <key>

func IsValidCommand(command []byte) bool {
	tokens := strings.Split(string(command), " ")

	if len(tokens) <= 1 {
		return false
	}

	operation := strings.ToUpper(tokens[0])
	if operation == "GET" || operation == "DEL" {
		return len(tokens) == 2
	}

	if operation == "SET" {
		return len(tokens) == 3
	}

	return false
}

func executeCommand(engine storage.Engine, command []byte) (string, error) {
	tokens := strings.Split(string(command), " ")
	operation := strings.ToUpper(tokens[0])
	key := []byte(tokens[1])

	switch operation {
	case "GET":
		value, found, err := engine.Get(key)
		if err != nil {
			return "", fmt.Errorf("executing GET %s: %w", key, err)
		}
		if !found {
			return "NOT FOUND", nil
		}
		return string(value), nil
	case "SET":
		if err := engine.Set(key, []byte(tokens[2])); err != nil {
			return "", fmt.Errorf("executing SET %s: %w", key, err)
		}
		return "DONE", nil
	case "DEL":
		if err := engine.Delete(key); err != nil {
			return "", fmt.Errorf("executing DEL %s: %w", key, err)
		}
		return "DONE", nil
	default:
		return "", fmt.Errorf("unknown command: %s", command)
	}
}
