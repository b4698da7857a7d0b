// Package pending 保存等待用户确认的识别结果
package pending

import (
	"context"
	"errors"
	"time"

	"expensebot/models"

	"github.com/google/uuid"
)

// ErrNotFound 记录不存在、已被处理或已过期
var ErrNotFound = errors.New("pending expense not found")

// ErrMismatch 记录存在但不满足取出条件，记录保持不变
var ErrMismatch = errors.New("pending expense does not match")

// Entry 待确认的消费
type Entry struct {
	ID            string
	ChatID        int64
	OwnerID       string
	Source        string
	RawText       string
	CorrectedText string
	Candidate     models.CandidateExpense
	Provenance    string
	CreatedAt     time.Time
}

func (e Entry) clone() Entry {
	out := e
	out.Candidate = e.Candidate.Clone()
	return out
}

// Store 待确认消费存储
// Take 与 TakeIf 必须是原子的读取并删除，并发调用同一 ID 时只有一个成功
// TakeIf 在同一临界区内检查条件，不满足时返回 ErrMismatch 且不删除
type Store interface {
	Put(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Take(ctx context.Context, id string) (Entry, error)
	TakeIf(ctx context.Context, id string, cond func(Entry) bool) (Entry, error)
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) int
}

// SameChat 只允许创建记录的会话取出；chatID 为 0 时不限制
func SameChat(chatID int64) func(Entry) bool {
	if chatID == 0 {
		return nil
	}
	return func(e Entry) bool { return e.ChatID == chatID }
}

// NewID 生成不可猜测的关联 ID
func NewID() string {
	return uuid.NewString()
}
