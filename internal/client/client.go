// Package client talks to the quiz HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/presenter"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Client struct {
	http  *http.Client
	base  string
	token string
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	h := &http.Client{Timeout: 30 * time.Second}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h, base: strings.TrimRight(cfg.BaseURL, "/"), token: cfg.Token}
}

// APIError is a non-2xx answer. It matches the quiz error sentinels so callers
// can use errors.Is as they would against the server packages.
type APIError struct {
	Status    int
	Message   string
	AttemptID string // set on 409 for an already active attempt
}

func (e *APIError) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Message) }

func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusNotFound:
		return target == quiz.ErrNotFound
	case http.StatusForbidden:
		return target == quiz.ErrForbidden
	case http.StatusBadRequest:
		return target == quiz.ErrValidation
	case http.StatusUnprocessableEntity:
		return target == quiz.ErrDataIntegrity
	case http.StatusConflict:
		if e.AttemptID != "" {
			return target == quiz.ErrConflict
		}
		return target == quiz.ErrInvalidState
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		var e struct {
			Error     string `json:"error"`
			AttemptID string `json:"attempt_id"`
		}
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: res.StatusCode, Message: e.Error, AttemptID: e.AttemptID}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func attemptPath(quizID, attemptID string) string {
	return "/quizzes/" + url.PathEscape(quizID) + "/attempts/" + url.PathEscape(attemptID)
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password, role string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	in := map[string]string{"username": username, "password": password, "role": role}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("login: empty token")
	}
	c.token = out.AccessToken
	return out.AccessToken, nil
}

// UploadQuiz stores an authored quiz. The caller needs quiz:create.
func (c *Client) UploadQuiz(ctx context.Context, qz quiz.Quiz) error {
	return c.do(ctx, http.MethodPost, "/quizzes", qz, nil)
}

func (c *Client) GetQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	var qz quiz.Quiz
	err := c.do(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID), nil, &qz)
	return qz, err
}

func (c *Client) StartAttempt(ctx context.Context, quizID string) (attempt.Started, error) {
	var s attempt.Started
	err := c.do(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/attempts", nil, &s)
	return s, err
}

func (c *Client) GetAttempt(ctx context.Context, quizID, attemptID string) (quiz.Attempt, error) {
	var a quiz.Attempt
	err := c.do(ctx, http.MethodGet, attemptPath(quizID, attemptID), nil, &a)
	return a, err
}

func (c *Client) Resume(ctx context.Context, quizID, attemptID string) (attempt.View, error) {
	var v attempt.View
	err := c.do(ctx, http.MethodPost, attemptPath(quizID, attemptID)+"/resume", nil, &v)
	return v, err
}

func (c *Client) RecordAnswer(ctx context.Context, quizID, attemptID, questionID string, d quiz.AnswerData) error {
	in := map[string]any{"answer_data": d}
	return c.do(ctx, http.MethodPut, attemptPath(quizID, attemptID)+"/answers/"+url.PathEscape(questionID), in, nil)
}

func (c *Client) ToggleBookmark(ctx context.Context, quizID, attemptID, questionID string) (bool, error) {
	var out struct {
		Bookmarked bool `json:"bookmarked"`
	}
	err := c.do(ctx, http.MethodPost, attemptPath(quizID, attemptID)+"/bookmarks/"+url.PathEscape(questionID), nil, &out)
	return out.Bookmarked, err
}

func (c *Client) Navigate(ctx context.Context, quizID, attemptID string, index int) (int, error) {
	var out struct {
		Index int `json:"current_question_index"`
	}
	err := c.do(ctx, http.MethodPost, attemptPath(quizID, attemptID)+"/navigate", map[string]int{"index": index}, &out)
	return out.Index, err
}

// Submit sends the final answers. It is safe to repeat.
func (c *Client) Submit(ctx context.Context, quizID, attemptID string, answers []quiz.Answer) (quiz.GradedResult, error) {
	var res quiz.GradedResult
	in := map[string]any{"answers": answers}
	err := c.do(ctx, http.MethodPost, attemptPath(quizID, attemptID)+"/submit", in, &res)
	return res, err
}

func (c *Client) Review(ctx context.Context, quizID, attemptID string) (presenter.Review, error) {
	var rv presenter.Review
	err := c.do(ctx, http.MethodGet, attemptPath(quizID, attemptID)+"/review", nil, &rv)
	return rv, err
}
