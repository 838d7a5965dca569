package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/client"
	"github.com/mind-engage/mindengage-quiz/internal/presenter"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

const help = `commands:
  a <answer>   answer the current question (option id, true/false or text)
  n, p         next / previous question
  g <n>        go to question n
  b            toggle bookmark
  l            list questions
  s            submit
`

// taker runs one attempt in the terminal. Progress is snapshotted locally so
// answers that could not be sent survive a crash and go out with the submit.
type taker struct {
	c        *client.Client
	quizID   string
	user     string
	stateDir string
	in       io.Reader
	out      io.Writer

	period time.Duration    // countdown tick
	now    func() time.Time // clock for the local state
}

func (t *taker) run(ctx context.Context) error {
	if t.now == nil {
		t.now = time.Now
	}
	blobs, err := storage.NewFSStore(t.stateDir)
	if err != nil {
		return err
	}
	cp := attempt.NewCheckpointer(blobs)
	cpCtx, stopCheckpoints := context.WithCancel(ctx)
	cpDone := make(chan struct{})
	go func() {
		cp.Run(cpCtx)
		close(cpDone)
	}()
	defer func() {
		stopCheckpoints()
		<-cpDone
	}()

	st, err := t.open(ctx, cp)
	if err != nil {
		return err
	}

	done := make(chan quiz.GradedResult, 1)
	sess := attempt.NewSession(st, attempt.SessionConfig{
		Period: t.period,
		Submit: func(ctx context.Context, a quiz.Attempt) (quiz.GradedResult, error) {
			sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return t.c.Submit(sctx, t.quizID, a.ID, answersOf(a))
		},
		Checkpoint: cp.Save,
		OnTick:     t.tick,
		OnFinish:   func(res quiz.GradedResult) { done <- res },
		OnRetry: func(trigger quiz.Trigger, err error) {
			fmt.Fprintf(t.out, "submit (%s) failed: %v; retrying\n", trigger, err)
		},
	})
	defer sess.Close()
	sess.Start()

	fmt.Fprintf(t.out, "attempt %s, %d questions\n", st.ID(), len(st.Questions()))
	if st.HasTimeLimit() {
		fmt.Fprintf(t.out, "time limit: %s left\n", clock(st.Remaining()))
	}
	fmt.Fprint(t.out, help)
	t.show(st)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(t.in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var res quiz.GradedResult
wait:
	for {
		select {
		case res = <-done:
			break wait
		case line, ok := <-lines:
			if !ok {
				lines = nil
				fmt.Fprintln(t.out, "input closed, submitting")
				line = "s"
			}
			if r, finished := t.handle(ctx, sess, line); finished {
				res = r
				break wait
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = cp.Forget(fctx, st.ID())
	cancel()

	if res.Status() == quiz.StatusSubmitted {
		fmt.Fprintf(t.out, "submitted: %d/%d so far, %d answer(s) awaiting a grader\n", res.Score, res.MaxScore, res.PendingManual)
	} else {
		fmt.Fprintf(t.out, "graded: score %d/%d (%d%%), medal %s\n", res.Score, res.MaxScore, res.ScorePercentage, res.Medal)
	}
	rv, err := t.c.Review(ctx, t.quizID, st.ID())
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}
	printReview(t.out, rv)
	return nil
}

// open starts an attempt or continues the active one. A local snapshot wins
// over the server copy since it may hold answers that were never sent.
func (t *taker) open(ctx context.Context, cp *attempt.Checkpointer) (*attempt.State, error) {
	s, err := t.c.StartAttempt(ctx, t.quizID)
	if err == nil {
		a := quiz.Attempt{
			ID:        s.AttemptID,
			QuizID:    t.quizID,
			UserID:    t.user,
			Status:    quiz.StatusInProgress,
			StartedAt: t.now().Unix(),
		}
		if s.TimeLimitSeconds != nil {
			a.HasTimeLimit, a.TimeRemainingSeconds = true, *s.TimeLimitSeconds
		}
		return attempt.NewState(a, s.Questions, t.now), nil
	}
	var apiErr *client.APIError
	if !errors.Is(err, quiz.ErrConflict) || !errors.As(err, &apiErr) {
		return nil, err
	}
	id := apiErr.AttemptID
	fmt.Fprintf(t.out, "resuming attempt %s\n", id)
	if snap, err := cp.Load(ctx, id); err == nil {
		if st, err := attempt.FromSnapshot(snap, t.now); err == nil && st.QuizID() == t.quizID {
			return st, nil
		}
	}
	v, err := t.c.Resume(ctx, t.quizID, id)
	if err != nil {
		return nil, err
	}
	return attempt.NewState(v.Attempt, v.Questions, t.now), nil
}

// handle runs one command. It reports true once the attempt has a result.
func (t *taker) handle(ctx context.Context, sess *attempt.Session, line string) (quiz.GradedResult, bool) {
	st := sess.State()
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	pos := st.Attempt().CurrentQuestionIndex
	qs := st.Questions()

	if (cmd == "a" || cmd == "b") && len(qs) == 0 {
		fmt.Fprintln(t.out, "error: attempt has no questions")
		return quiz.GradedResult{}, false
	}

	var err error
	switch cmd {
	case "":
		return quiz.GradedResult{}, false
	case "a":
		q := qs[pos]
		if err = st.RecordAnswer(q.ID, parseAnswer(q, arg)); err == nil {
			sess.Touch()
			if serr := t.c.RecordAnswer(ctx, t.quizID, st.ID(), q.ID, parseAnswer(q, arg)); serr != nil {
				fmt.Fprintf(t.out, "saved locally, will be sent on submit (%v)\n", serr)
			}
		}
	case "n", "p", "g":
		next := pos + 1
		if cmd == "p" {
			next = pos - 1
		}
		if cmd == "g" {
			n, perr := strconv.Atoi(arg)
			if perr != nil {
				fmt.Fprintln(t.out, "usage: g <n>")
				return quiz.GradedResult{}, false
			}
			next = n - 1
		}
		if _, err = st.Navigate(next); err == nil {
			sess.Touch()
			_, _ = t.c.Navigate(ctx, t.quizID, st.ID(), next)
			t.show(st)
		}
	case "b":
		var on bool
		if on, err = st.ToggleBookmark(qs[pos].ID); err == nil {
			sess.Touch()
			_, _ = t.c.ToggleBookmark(ctx, t.quizID, st.ID(), qs[pos].ID)
			fmt.Fprintf(t.out, "bookmarked: %v\n", on)
		}
	case "l":
		t.list(st)
	case "s":
		res, serr := sess.Submit(ctx, nil, quiz.TriggerManual)
		if serr == nil {
			return res, true
		}
		if errors.Is(serr, quiz.ErrValidation) || errors.Is(serr, quiz.ErrDataIntegrity) {
			err = serr
			break
		}
		fmt.Fprintf(t.out, "submit failed: %v; retrying in the background\n", serr)
		sess.Retry()
	case "h", "help":
		fmt.Fprint(t.out, help)
	default:
		fmt.Fprintf(t.out, "unknown command %q\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(t.out, "error: %v\n", err)
	}
	return quiz.GradedResult{}, false
}

func (t *taker) tick(remaining int) {
	if remaining <= 10 || remaining%60 == 0 {
		fmt.Fprintf(t.out, "[%s left]\n", clock(remaining))
	}
}

func (t *taker) show(st *attempt.State) {
	a := st.Attempt()
	qs := st.Questions()
	if len(qs) == 0 {
		return
	}
	q := qs[a.CurrentQuestionIndex]
	fmt.Fprintf(t.out, "\n(%d/%d) [%s, %d pts] %s\n", a.CurrentQuestionIndex+1, len(qs), q.Type, q.Points, q.PromptHTML)
	switch q.Type {
	case quiz.TypeMultipleChoice:
		for _, o := range q.Options {
			fmt.Fprintf(t.out, "  %s) %s\n", o.ID, o.LabelHTML)
		}
	case quiz.TypeTrueFalse:
		fmt.Fprintln(t.out, "  true / false")
	}
	if ans, ok := a.Answers[q.ID]; ok {
		fmt.Fprintf(t.out, "  your answer: %s\n", presenter.Describe(q, ans.Data))
	}
}

func (t *taker) list(st *attempt.State) {
	a := st.Attempt()
	marked := map[string]bool{}
	for _, id := range a.Bookmarks {
		marked[id] = true
	}
	for i, q := range st.Questions() {
		status := " "
		if _, ok := a.Answers[q.ID]; ok {
			status = "x"
		}
		flag := ""
		if marked[q.ID] {
			flag = " *"
		}
		fmt.Fprintf(t.out, "  [%s] %d. %s%s\n", status, i+1, q.ID, flag)
	}
}

func parseAnswer(q quiz.Question, text string) quiz.AnswerData {
	switch q.Type {
	case quiz.TypeMultipleChoice:
		return quiz.AnswerData{OptionID: text}
	case quiz.TypeTrueFalse:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return quiz.AnswerData{}
		}
		return quiz.AnswerData{Value: &v}
	case quiz.TypeCodeChallenge:
		return quiz.AnswerData{Code: text}
	default:
		return quiz.AnswerData{Text: text}
	}
}

func answersOf(a quiz.Attempt) []quiz.Answer {
	out := make([]quiz.Answer, 0, len(a.Answers))
	for _, ans := range a.Answers {
		out = append(out, ans)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

func clock(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func printReview(w io.Writer, rv presenter.Review) {
	fmt.Fprintf(w, "\n%s: %d/%d (%d%%) passed=%v medal=%s\n", rv.QuizTitle, rv.Score, rv.MaxScore, rv.ScorePercentage, rv.Passed, rv.Medal)
	for _, it := range rv.Items {
		mark := "?"
		if it.IsCorrect != nil {
			mark = "x"
			if *it.IsCorrect {
				mark = "ok"
			}
		}
		fmt.Fprintf(w, "  %d. [%s] %s", it.Order, mark, it.YourAnswer)
		if it.CorrectAnswer != "" {
			fmt.Fprintf(w, " (correct: %s)", it.CorrectAnswer)
		}
		fmt.Fprintln(w)
		if it.Explanation != "" {
			fmt.Fprintf(w, "     %s\n", it.Explanation)
		}
		for _, fb := range it.Feedback {
			fmt.Fprintf(w, "     %s\n", fb)
		}
	}
}
