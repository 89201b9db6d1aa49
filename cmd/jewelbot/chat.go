package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/jewelbot/internal/controller"
	"github.com/ChamsBouzaiene/jewelbot/internal/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatSession string

var (
	userPromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	agentLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	agentTextStyle = lipgloss.NewStyle().
			Padding(0, 2).
			MarginBottom(1)

	imageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true).
			PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Start an interactive conversation.

Commands:
  /image <path>   attach an image to the next message
  /reset          forget the conversation
  /quit           leave`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := prepareRuntimeEnv(ctx, runtimeOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		id := chatSession
		if id == "" {
			id = uuid.NewString()
		}
		return runChat(ctx, env.Controller, id, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Resume a session id (requires JEWELBOT_SESSION_DIR)")
}

func runChat(ctx context.Context, turns server.Turner, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, hintStyle.Render("session "+sessionID+" · /image <path>, /reset, /quit"))

	var pending []string
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, userPromptStyle.Render("you> "))
		if !s.Scan() {
			break
		}
		line := strings.TrimSpace(s.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			if err := turns.Reset(ctx, sessionID); err != nil {
				fmt.Fprintln(out, errorStyle.Render("reset failed: "+err.Error()))
				continue
			}
			pending = nil
			fmt.Fprintln(out, hintStyle.Render("conversation cleared"))
			continue
		case strings.HasPrefix(line, "/image "):
			ref, err := imageDataURL(strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
				continue
			}
			pending = append(pending, ref)
			fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("%d image(s) attached to your next message", len(pending))))
			continue
		}

		reply, err := turns.RunTurn(ctx, sessionID, controller.Input{Text: line, Images: pending})
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(server.ClientMessage(err)))
			continue
		}
		pending = nil
		renderReply(out, reply)
	}
	return s.Err()
}

func renderReply(out io.Writer, reply controller.Reply) {
	fmt.Fprintln(out, agentLabelStyle.Render("jewelbot"))
	fmt.Fprintln(out, agentTextStyle.Render(reply.Text))
	for _, img := range reply.Images {
		fmt.Fprintln(out, imageStyle.Render("🖼  "+img))
	}
}

// imageDataURL reads an image file into a base64 data URL.
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
