package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"raftkv/src/config"
	"raftkv/src/httpapi"
	"raftkv/src/logging"
	"raftkv/src/raft_messages"
)

func StartCli() {
	context := createAppContext()

	if config.Config.HttpApiAddress != "" {
		go httpapi.Serve(config.Config.HttpApiAddress, &httpCluster{context: context})
	}

	responses := context.networkController.RegisterClient(cliClientId)
	app, appQuit := setupApp(context)
	go logClientResponses(responses, logging.CreateLogger("[green][CLIENT[]", context.logs), appQuit)

	if err := app.Run(); err != nil {
		panic(any(err))
	}

	close(appQuit)
}

func setupApp(context *appContext) (*tview.Application, chan struct{}) {
	flex := tview.NewFlex()
	flex.SetDirection(tview.FlexRow)

	nodesStateTextView := tview.NewTextView()
	nodesStateTextView.SetBorder(true).SetTitle("Nodes State")
	flex.AddItem(nodesStateTextView, 0, 2, false)

	loggerTextView := tview.NewTextView()
	loggerTextView.SetBorder(true).SetTitle("Logs")
	flex.AddItem(loggerTextView, 0, 3, false)

	commandsInputField := tview.NewInputField()
	commandsInputField.SetBorder(true).SetTitle("Commands Input")
	flex.AddItem(commandsInputField, 3, 1, true)

	appQuit := make(chan struct{})

	app := tview.NewApplication().SetRoot(flex, true)

	go renderLogs(context.logs, loggerTextView, appQuit)
	go func() {
		for {
			select {
			case <-time.After(100 * time.Millisecond):
				renderNodesState(context, nodesStateTextView)
				app.Draw()
			case <-appQuit:
				return
			}
		}
	}()
	go listenForUserCommands(commandsInputField, context, appQuit)

	return app, appQuit
}

func logClientResponses(responses chan raft_messages.Message, logger *logging.Logger, quit chan struct{}) {
	for {
		select {
		case message := <-responses:
			if response, ok := message.Payload.(*raft_messages.ResponseToClientPayload); ok {
				logger.Logf("request %s - success: %t, result: %s", response.RequestId, response.Success, response.Result)
			}
		case <-quit:
			return
		}
	}
}

func renderLogs(logs chan logging.LoggerEntry, textView *tview.TextView, quit chan struct{}) {
	start := time.Now()
	for {
		select {
		case entry := <-logs:
			writer := textView.BatchWriter()
			prefix := formatTimestamp(start, entry.Timestamp)
			for _, message := range entry.Messages {
				fmt.Fprintf(writer, "%s %s\n", prefix, message)
				prefix = strings.Repeat(" ", len(prefix))
			}
			writer.Close()
		case <-quit:
			return
		}
	}
}

func formatTimestamp(start time.Time, end time.Time) string {
	diff := end.Sub(start)
	return fmt.Sprintf("[%02d:%02d:%04d]", int(diff.Minutes()), int(diff.Seconds()), diff.Milliseconds())
}
