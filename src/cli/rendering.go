package cli

import (
	"fmt"

	"github.com/rivo/tview"

	"raftkv/src/raft_state"
)

func renderNodesState(context *appContext, textView *tview.TextView) {
	writer := textView.BatchWriter()
	writer.Clear()
	defer writer.Close()

	for _, view := range context.nodeViews() {
		snapshot := view.snapshot
		fmt.Fprintf(writer, "NODE: %d  ROLE: %10s  TERM: %2d  VOTED: %2d  COMMIT: %2d  APPLIED: %2d  LEADER: %2d\n",
			snapshot.NodeId,
			snapshot.Role,
			snapshot.Term,
			snapshot.VotedFor,
			snapshot.CommitIndex,
			view.lastApplied,
			snapshot.Leader,
		)
		fmt.Fprintf(writer, "LOG: %s", logEntriesToString(snapshot.LogTail))
		fmt.Fprintf(writer, "\n")
		fmt.Fprintf(writer, "\n")
	}
}

func logEntriesToString(entries []raft_state.LogEntry) string {
	result := ""
	for _, entry := range entries {
		result += fmt.Sprintf("[I:%d T:%d C:'%s']", entry.Index, entry.Term, entry.Command)
	}

	return result
}
