package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a question about the product catalog",
		Long: `Ask sends a question to the productqa server and prints the answer.

When no arguments are given the question is read from stdin.

Examples:
  pqa ask "Which snacks are gluten free?"
  echo "What is the cheapest tea?" | pqa ask
  pqa --server http://qa.internal:5001 ask --plain "Is the oat milk in stock?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				q, err := readQuestion(cmd.InOrStdin())
				if err != nil {
					return err
				}
				question = q
			}
			if question == "" {
				return errors.New("no question provided")
			}

			answer, err := newClient(opts).ask(cmd.Context(), question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if plain {
				fmt.Fprintln(out, answer)
				return nil
			}
			fmt.Fprintln(out, dimStyle.Render("Q: "+question))
			fmt.Fprintln(out, answerStyle.Render(answer))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print only the answer text")
	return cmd
}

func readQuestion(r io.Reader) (string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read question from stdin: %w", err)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
