package sdk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// EventType discriminates answer stream events.
type EventType string

// Stream event types.
const (
	EventStage EventType = "stage"
	EventToken EventType = "token"
	EventFinal EventType = "final"
	EventError EventType = "error"
)

// Event is one element of the streamed answer.
type Event struct {
	Type    EventType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	Token   string    `json:"token,omitempty"`
	Final   *Final    `json:"final,omitempty"`
}

// Final is the terminal stream payload.
type Final struct {
	Answer   string    `json:"answer"`
	Passages []Passage `json:"passages"`
}

// Passage is a cited source passage.
type Passage struct {
	ID        string   `json:"id"`
	DocID     string   `json:"doc_id"`
	DocTitle  string   `json:"doc_title"`
	DocType   string   `json:"doc_type,omitempty"`
	DocURL    string   `json:"doc_url,omitempty"`
	PageStart int      `json:"page_start,omitempty"`
	PageEnd   int      `json:"page_end,omitempty"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Answer holds a complete synchronous answer.
type Answer struct {
	Answer   string    `json:"answer"`
	Passages []Passage `json:"passages"`
}

type answerRequest struct {
	Question string `json:"question"`
}

// AnswerOnce asks the question and waits for the complete answer.
func (c *Client) AnswerOnce(ctx context.Context, question string) (Answer, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/answer/sync", answerRequest{Question: question})
	if err != nil {
		return Answer{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("sdk: answer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Answer{}, errorFromResponse(resp)
	}

	var out Answer
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Answer{}, fmt.Errorf("sdk: decode answer: %w", err)
	}
	return out, nil
}

// Answer asks the question and invokes handle for every stream event in
// arrival order. It returns after the terminal event, when the stream is
// cut, or when ctx is cancelled. A server-reported generation failure is
// returned as ErrAnswerFailed after its error event is delivered.
func (c *Client) Answer(ctx context.Context, question string, handle func(Event)) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/answer", answerRequest{Question: question})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sdk: answer stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(line[len("data: "):]), &ev); err != nil {
			return fmt.Errorf("sdk: decode stream event: %w", err)
		}
		handle(ev)

		switch ev.Type {
		case EventFinal:
			return nil
		case EventError:
			return fmt.Errorf("sdk: %s: %w", ev.Message, ErrAnswerFailed)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sdk: read answer stream: %w", err)
	}
	return fmt.Errorf("sdk: stream ended without terminal event: %w", ErrServer)
}
