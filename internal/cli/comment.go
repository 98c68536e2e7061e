package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

const maxStdinSize = 1 << 20 // 1 MiB

var commentCmd = &cobra.Command{
	Use:   "comment <id>",
	Short: "Add a comment to an issue",
	Long: `Add a comment to an issue.

The body comes from -m, then from a stdin pipe, then from $EDITOR. Comments
are append-only once the server accepts them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		id := args[0]

		body, err := commentBody(cmd, w.JSONMode)
		if err != nil {
			return err
		}
		if body == "" {
			w.Info("Cancelled.")
			return nil
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		comment, err := client.AddComment(cmd.Context(), id, body)
		if err != nil {
			if api.IsNotFound(err) {
				return cmdErr(fmt.Errorf("issue %s not found", id), output.ErrNotFound)
			}
			return fail(err, "adding comment")
		}

		// Only threads of cached issues are kept locally.
		if err := db.SaveComments(conn, id, []model.Comment{*comment}); err != nil && !errors.Is(err, db.ErrNotFound) {
			getLogger(cmd).Warn("caching comment", "id", id, "error", err)
		}
		record(cmd, model.Activity{IssueID: id, Action: model.ActionComment, NewValue: comment.ID})

		w.Success(comment, fmt.Sprintf("Comment added to %s\n%s", id, render.RenderComments([]model.Comment{*comment})))
		return nil
	},
}

// commentBody resolves the body from the flag, a stdin pipe or the editor.
func commentBody(cmd *cobra.Command, jsonMode bool) (string, error) {
	body, _ := cmd.Flags().GetString("message")
	if cmd.Flags().Changed("message") {
		return strings.TrimSpace(body), nil
	}

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		lr := &io.LimitedReader{R: os.Stdin, N: maxStdinSize + 1}
		data, err := io.ReadAll(lr)
		if err != nil {
			return "", cmdErr(fmt.Errorf("reading comment from stdin: %w", err), output.ErrGeneral)
		}
		if int64(len(data)) > maxStdinSize {
			return "", cmdErr(fmt.Errorf("comment body exceeds %d bytes", maxStdinSize), output.ErrValidation)
		}
		if body = strings.TrimSpace(string(data)); body != "" {
			return body, nil
		}
	}

	// No editor fallback in JSON mode.
	if jsonMode {
		return "", cmdErr(fmt.Errorf("message is required in JSON mode"), output.ErrValidation)
	}
	return editBody()
}

func editBody() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	tmpFile, err := os.CreateTemp("", "citywatch-comment-*.md")
	if err != nil {
		return "", cmdErr(fmt.Errorf("creating temp file: %w", err), output.ErrGeneral)
	}
	tmpPath := tmpFile.Name()
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", cmdErr(fmt.Errorf("closing temp file: %w", err), output.ErrGeneral)
	}
	defer os.Remove(tmpPath)

	editorCmd := exec.Command(editor, tmpPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return "", cmdErr(fmt.Errorf("editor exited with error: %w", err), output.ErrGeneral)
	}

	content, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", cmdErr(fmt.Errorf("reading temp file: %w", err), output.ErrGeneral)
	}
	return strings.TrimSpace(string(content)), nil
}

func init() {
	commentCmd.Flags().StringP("message", "m", "", "Comment body")
	rootCmd.AddCommand(commentCmd)
}
