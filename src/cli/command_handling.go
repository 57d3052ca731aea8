package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"raftkv/src/config"
	"raftkv/src/logging"
	"raftkv/src/raft_state"
)

const cliClientId = "cli"

var nextRequestId int

func listenForUserCommands(inputField *tview.InputField, context *appContext, quit chan struct{}) {
	logger := logging.CreateLogger("[green][COMMAND[]", context.logs)
	commandsChannel := make(chan string)
	inputField.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			command := inputField.GetText()
			if len(command) > 0 {
				commandsChannel <- command
			}
		}
	})

	for {
		select {
		case command := <-commandsChannel:
			handleCommand(command, context, logger)
			inputField.SetText("")
		case <-quit:
			return
		}
	}
}

func handleCommand(command string, context *appContext, logger *logging.Logger) {
	tokens := strings.Split(command, " ")
	switch tokens[0] {
	case "client":
		if len(tokens) < 3 {
			logInvalidCommand(command, logger)
			return
		}

		nodeId, err := strconv.Atoi(tokens[1])
		if err != nil {
			logInvalidCommand(command, logger)
			return
		}

		nextRequestId++
		requestId := fmt.Sprintf("cli-%d", nextRequestId)
		delivered := context.networkController.SendFromClient(
			cliClientId,
			raft_state.NodeId(nodeId),
			requestId,
			[]byte(strings.Join(tokens[2:], " ")),
		)
		if delivered {
			logger.Logf("%s (request %s)", command, requestId)
		} else {
			logInvalidCommand(command, logger)
		}
	case "node-restart":
		if len(tokens) != 2 {
			logInvalidCommand(command, logger)
			return
		}

		nodeId, err := strconv.Atoi(tokens[1])
		if err != nil {
			logInvalidCommand(command, logger)
			return
		}

		if err := context.restartNode(raft_state.NodeId(nodeId)); err != nil {
			logInvalidCommand(command, logger)
		} else {
			logger.Log(command)
		}
	case "network-splits":
		if len(tokens) < 2 {
			logInvalidCommand(command, logger)
			return
		}
		splits := make([][]raft_state.NodeId, len(tokens[1:]))
		for i, token := range tokens[1:] {
			nodes := strings.Split(token, ",")
			splits[i] = make([]raft_state.NodeId, len(nodes))

			for j, nodeIdStr := range nodes {
				if nodeId, err := strconv.Atoi(nodeIdStr); err == nil {
					splits[i][j] = raft_state.NodeId(nodeId)
				} else {
					logInvalidCommand(command, logger)
					return
				}
			}
		}

		logger.Log(command)
		context.networkController.SetNetworkSplits(splits)
	case "tick-interval":
		if len(tokens) != 2 {
			logInvalidCommand(command, logger)
			return
		}

		if interval, err := strconv.Atoi(tokens[1]); err == nil && interval > 0 {
			config.Config.TickIntervalMilliseconds = interval
			logger.Log(command)
		} else {
			logInvalidCommand(command, logger)
		}
	case "help":
		logHelp(logger)
	default:
		logInvalidCommand(command, logger)
	}
}

func logInvalidCommand(command string, logger *logging.Logger) {
	logger.Logf("'%s' - invalid command, type 'help' to list available commands", command)
}

func logHelp(logger *logging.Logger) {
	logger.LogMultiple([]string{
		"available commands:",
		"client <node-id> <command>   send a client command (GET k / SET k v / DEL k) to a node",
		"node-restart <node-id>       stop a node and restart it from its persisted log",
		"network-splits <a,b> <c..>   partition the cluster into the given groups",
		"tick-interval <ms>           change the real-time duration of a logical tick",
		"help                         show this message",
	})
}
