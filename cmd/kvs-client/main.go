// Command kvs-client is a one-shot CLI client for the kvstash server:
// each subcommand opens one connection, sends one request, prints the
// result, and exits.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
)

// request/response mirror internal/server's wire types. They are
// redeclared here rather than imported so the client binary never
// depends on the server's internal package, matching the reference
// project's client, which speaks the wire contract without depending
// on the server crate's private modules.
type request struct {
	Op    string `json:"op"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

type response struct {
	OK    bool   `json:"ok"`
	Found bool   `json:"found,omitempty"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

var addr string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kvs-client",
		Short: "One-shot client for a kvstash server",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4000", "server address")

	root.AddCommand(getCmd(), setCmd(), removeCmd())
	return root
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(request{Op: "get", Key: args[0]})
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s", resp.Error)
			}
			if !resp.Found {
				fmt.Println("Key not found")
				return nil
			}
			fmt.Println(resp.Value)
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a key to a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := roundTrip(request{Op: "set", Key: args[0], Value: args[1]})
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s", resp.Error)
			}
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			resp, err := roundTrip(request{Op: "remove", Key: args[0]})
			if err != nil {
				return err
			}
			if !resp.OK {
				fmt.Fprintln(os.Stderr, resp.Error)
				os.Exit(1)
			}
			return nil
		},
	}
}

func roundTrip(req request) (response, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
