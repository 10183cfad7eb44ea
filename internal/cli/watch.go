package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/scrapeflow/internal/stream"
	"github.com/petrijr/scrapeflow/pkg/api"
)

func newWatchCommand(app *App) *cobra.Command {
	var (
		serverURL string
		runID     string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start a scrape run and follow its progress",
		Long: `Start a scrape run on a running scrapeflow server and render its
event stream until the result arrives. With --run, follow an existing run
instead of starting a new one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := &watcher{
				base:   strings.TrimRight(serverURL, "/"),
				client: http.DefaultClient,
				out:    cmd.OutOrStdout(),
			}
			ok, err := w.run(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if !ok {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "scrapeflow server URL")
	cmd.Flags().StringVar(&runID, "run", "", "follow an existing run instead of starting one")
	return cmd
}

type watcher struct {
	base   string
	client *http.Client
	out    io.Writer
}

// run follows runID, starting a new scrape run when it is empty. It reports
// whether the run succeeded.
func (w *watcher) run(ctx context.Context, runID string) (bool, error) {
	if runID == "" {
		id, err := w.trigger(ctx)
		if err != nil {
			return false, err
		}
		runID = id
	}

	fmt.Fprintln(w.out, headerStyle.Render(labelStyle.Render("scrapeflow")+" run "+runID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+"/message/"+runID, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, responseError(resp)
	}

	ok := false
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	for sc.Scan() {
		data, found := strings.CutPrefix(sc.Text(), "data: ")
		if !found {
			continue
		}
		var m stream.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return false, fmt.Errorf("decode stream message: %w", err)
		}
		fmt.Fprintln(w.out, render(m))
		if m.Type == stream.TypeResult {
			ok = !isErrorPayload(m.Payload)
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("read stream: %w", err)
	}
	return ok, nil
}

func (w *watcher) trigger(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.base+"/scrape", nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("start scrape: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	var body struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode scrape response: %w", err)
	}
	if body.MessageID == "" {
		return "", errors.New("server returned no messageId")
	}
	return body.MessageID, nil
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("server responded %d: %s", resp.StatusCode, body.Error)
}

// render formats one stream message for the terminal.
func render(m stream.Message) string {
	fields, _ := m.Payload.(map[string]any)
	step, _ := fields["step"].(string)
	errMsg, _ := fields["error"].(string)

	switch api.EventType(m.Type) {
	case api.EventStepStarted:
		return startedStyle.Render(bulletStarted+" ") + stepStyle.Render(step) + metaStyle.Render(" started")
	case api.EventStepSucceeded:
		return doneStyle.Render(bulletDone+" ") + stepStyle.Render(step) + metaStyle.Render(" completed")
	case api.EventStepFailed:
		return errorStyle.Render(bulletFailed+" ") + stepStyle.Render(step) + errorStyle.Render(" "+errMsg)
	case api.EventRunSucceeded:
		return runDoneStyle.Render("workflow completed")
	case api.EventRunFailed:
		return runFailedStyle.Render(fmt.Sprintf("workflow failed at %s: %s", step, errMsg))
	}

	if m.Type == stream.TypeResult {
		return renderResult(m.Payload)
	}
	return metaStyle.Render(m.Type)
}

func isErrorPayload(v any) bool {
	m, ok := v.(map[string]any)
	return ok && m["status"] == "error" && len(m) == 2
}

func renderResult(payload any) string {
	if isErrorPayload(payload) {
		msg, _ := payload.(map[string]any)["message"].(string)
		return runFailedStyle.Render("result: error: " + msg)
	}

	var lines []string
	collectArticles(payload, "", &lines)
	if len(lines) == 0 {
		b, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return metaStyle.Render(fmt.Sprint(payload))
		}
		return labelStyle.Render("result") + "\n" + string(b)
	}
	return labelStyle.Render(fmt.Sprintf("result: %d articles", len(lines))) + "\n" + strings.Join(lines, "\n")
}

// collectArticles walks a result looking for "articles" lists and renders
// one line per article, prefixed with the key it was found under.
func collectArticles(v any, source string, out *[]string) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if k != "articles" {
			next := source
			if strings.HasSuffix(k, "Articles") {
				next = strings.TrimSuffix(k, "Articles")
			}
			collectArticles(m[k], next, out)
			continue
		}
		list, _ := m[k].([]any)
		for _, item := range list {
			a, _ := item.(map[string]any)
			title, _ := a["title"].(string)
			link, _ := a["link"].(string)
			if title == "" {
				continue
			}
			line := doneStyle.Render(bulletDone+" ") + title + metaStyle.Render(" "+link)
			if source != "" {
				line = metaStyle.Render("["+source+"] ") + line
			}
			*out = append(*out, line)
		}
	}
}
