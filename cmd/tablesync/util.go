package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/loykin/tablesync/pkg/client"
)

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func printStatus(out io.Writer, st client.StatusResponse) {
	_, _ = fmt.Fprintf(out, "module: %s (%d)\n", st.Status, st.Code)
	for _, w := range st.Workers {
		state := "exited"
		if w.Alive {
			state = "alive"
		}
		_, _ = fmt.Fprintf(out, "  %-8s %s\n", w.Name, state)
	}
}
