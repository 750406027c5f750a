package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unhabit/internal/session"
)

const chatHelp = "Type a message for your coach. Commands: /plan, /reset, /quit"

var errQuit = errors.New("quit")

// runInteractive drives one session over stdin/stdout.
func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	sess, err := a.newSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	printTitle(out, "unhabit: habit coaching")

	for {
		err := runSession(ctx, sess, in, out)
		if !errors.Is(err, errReset) {
			if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := sess.Reset(); err != nil {
			return err
		}
		a.client.SetSessionID(sess.ID())
		logger.Info("session reset", zap.String("session_id", sess.ID()))
		fmt.Fprintln(out)
	}
}

var errReset = errors.New("reset")

func runSession(ctx context.Context, sess *session.Session, in *bufio.Scanner, out io.Writer) error {
	habit, err := readLine(in, out, "Describe the habit you want to change:")
	if err != nil {
		return err
	}
	step, err := sess.Start(ctx, habit)
	if err != nil {
		return err
	}
	printNotes(out, step)

	if step.State.Blocked() {
		printBlocked(out, step.State.Safety)
		return chatLoop(ctx, sess, in, out)
	}

	form := step.State.QuizForm
	printTitle(out, "A few questions about "+form.HabitNameGuess)
	answers := make(map[string]string, len(form.Questions))
	for i, q := range form.Questions {
		printQuestion(out, i+1, q)
		answer, err := readLine(in, out, ">")
		if err != nil {
			return err
		}
		answers[q.ID] = answer
	}

	step, err = sess.SubmitAnswers(ctx, answers)
	if err != nil {
		return err
	}
	printNotes(out, step)
	printPlan(out, step.State.Plan21)
	printCoach(out, step.State.CoachReply)
	fmt.Fprintln(out, noteStyle.Render(chatHelp))

	return chatLoop(ctx, sess, in, out)
}

func chatLoop(ctx context.Context, sess *session.Session, in *bufio.Scanner, out io.Writer) error {
	for {
		line, err := readLine(in, out, "You:")
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit":
			return errQuit
		case "/reset":
			return errReset
		case "/plan":
			printPlan(out, sess.State().Plan21)
			continue
		}

		step, err := sess.Chat(ctx, line)
		if err != nil {
			return err
		}
		printNotes(out, step)
		printCoach(out, step.State.CoachReply)
	}
}

// readLine prints prompt and returns the next trimmed input line, or io.EOF.
func readLine(in *bufio.Scanner, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, promptStyle.Render(prompt)+" ")
	if !in.Scan() {
		fmt.Fprintln(out)
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(in.Text()), nil
}
