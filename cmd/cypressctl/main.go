// Command cypressctl is an interactive operator shell for the Cypress
// transaction coordinator, in the same vein as gojodb_cli's interactive
// mode — but using github.com/chzyer/readline for line editing/history
// instead of a bare bufio.Scanner loop, since that library is already in
// the dependency tree.
package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/mutation"
	"github.com/cypressdb/coordinator/internal/plans"
	"github.com/cypressdb/coordinator/internal/sequoia"
	"github.com/cypressdb/coordinator/internal/txnid"
)

const localCellTag = txnid.CellTag(1)

func main() {
	store := sequoia.NewStore(nil, actions.NewRouter())
	invoker := mutation.NewInvoker(4)
	defer invoker.Close()
	coord := plans.NewCoordinator(store, invoker, nil, mutation.NewMetrics(nil), localCellTag, nil)

	rl, err := readline.New("cypressctl> ")
	if err != nil {
		fmt.Printf("Error: failed to start shell: %v\n", err)
		return
	}
	defer rl.Close()

	fmt.Println("cypressctl (in-memory demo cell). Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Println("Exiting cypressctl.")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		processCommand(coord, fields)
		if cmd := strings.ToLower(fields[0]); cmd == "exit" || cmd == "quit" {
			return
		}
	}
}

func processCommand(coord *plans.Coordinator, args []string) {
	ctx := context.Background()
	switch strings.ToLower(args[0]) {
	case "start":
		result, err := coord.StartCypressTransactionInSequoiaAndReply(ctx, plans.StartRequest{})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("started %s\n", result.Id)

	case "commit":
		if len(args) < 3 {
			fmt.Println("Error: commit requires <transaction_id> <commit_timestamp>")
			return
		}
		id, err := parseId(args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		ts, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Printf("Error: invalid commit timestamp: %v\n", err)
			return
		}
		result, err := coord.CommitCypressTransactionInSequoia(ctx, id, ts, actions.AuthenticationIdentity{})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("committed, timestamps=%v\n", result.CommitTimestamps)

	case "abort":
		if len(args) < 2 {
			fmt.Println("Error: abort requires <transaction_id> [force]")
			return
		}
		id, err := parseId(args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		force := len(args) > 2 && strings.EqualFold(args[2], "force")
		_, err = coord.AbortCypressTransactionInSequoiaAndReply(ctx, id, force, actions.AuthenticationIdentity{})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Println("aborted")

	case "help":
		fmt.Println("Commands:")
		fmt.Println("  start")
		fmt.Println("  commit <transaction_id> <commit_timestamp>")
		fmt.Println("  abort <transaction_id> [force]")
		fmt.Println("  help")
		fmt.Println("  exit / quit")

	case "exit", "quit":
		fmt.Println("Exiting cypressctl.")

	default:
		fmt.Println("Error: Unknown command. Type 'help' for a list of commands.")
	}
}

// parseId round-trips the hex format produced by txnid.Id.String via its
// TextUnmarshaler, since that's the only stable way to name a
// transaction at this shell.
func parseId(s string) (txnid.Id, error) {
	var id txnid.Id
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return txnid.Id{}, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	return id, nil
}
