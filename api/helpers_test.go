package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"expensebot/database"
	"expensebot/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func withSubject(subject string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("subject", subject)
		c.Next()
	}
}

// memStore 内存实现的类别与消费记录存储
type memStore struct {
	mu         sync.Mutex
	categories []models.Category
	expenses   []*models.Expense
	nextCat    uint
	fail       error
}

func newMemStore() *memStore {
	return &memStore{
		categories: []models.Category{
			{ID: 1, Name: "Groceries", Color: "#34d399", Icon: "🛒", IsDefault: true},
			{ID: 2, Name: "Transport", Color: "#60a5fa", Icon: "🚗", IsDefault: true},
			{ID: 3, Name: "Cadouri", Color: "#fb923c", Icon: "🎁"},
		},
		nextCat: 4,
	}
}

func (s *memStore) ListCategories(context.Context) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return append([]models.Category(nil), s.categories...), nil
}

func (s *memStore) FindCategory(_ context.Context, id uint) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, database.ErrCategoryNotFound
}

func (s *memStore) FindCategoryByName(_ context.Context, name string) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			c := c
			return &c, nil
		}
	}
	return nil, database.ErrCategoryNotFound
}

func (s *memStore) CreateCategory(_ context.Context, cat *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(cat.Name) == "" {
		return database.ErrEmptyName
	}
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, cat.Name) {
			return database.ErrCategoryExists
		}
	}
	cat.ID = s.nextCat
	s.nextCat++
	s.categories = append(s.categories, *cat)
	return nil
}

func (s *memStore) UpdateCategory(_ context.Context, id uint, upd database.CategoryUpdate) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		c := &s.categories[i]
		if c.ID != id {
			continue
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return nil, database.ErrEmptyName
			}
			for _, other := range s.categories {
				if other.ID != id && strings.EqualFold(other.Name, name) {
					return nil, database.ErrCategoryExists
				}
			}
			c.Name = name
		}
		if upd.Color != nil {
			c.Color = *upd.Color
		}
		if upd.Icon != nil {
			c.Icon = *upd.Icon
		}
		out := *c
		return &out, nil
	}
	return nil, database.ErrCategoryNotFound
}

func (s *memStore) DeleteCategory(_ context.Context, id uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.categories {
		if c.ID != id {
			continue
		}
		if c.IsDefault {
			return 0, database.ErrDefaultCategory
		}
		var detached int64
		for _, e := range s.expenses {
			if e.CategoryID != nil && *e.CategoryID == id {
				e.CategoryID, e.Category = nil, nil
				detached++
			}
		}
		s.categories = append(s.categories[:i], s.categories[i+1:]...)
		return detached, nil
	}
	return 0, database.ErrCategoryNotFound
}

func (s *memStore) CreateExpense(_ context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if e.ID == "" {
		e.ID = "exp-" + string(rune('a'+len(s.expenses)))
	}
	e.CreatedAt = time.Date(2025, 1, 10, 12, 0, len(s.expenses), 0, time.UTC)
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *memStore) attach(e models.Expense) models.Expense {
	if e.CategoryID != nil {
		for _, c := range s.categories {
			if c.ID == *e.CategoryID {
				c := c
				e.Category = &c
			}
		}
	}
	return e
}

func (s *memStore) FindExpense(_ context.Context, id string) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID == id {
			out := s.attach(*e)
			return &out, nil
		}
	}
	return nil, database.ErrExpenseNotFound
}

func (s *memStore) ListExpenses(_ context.Context, f database.ExpenseFilter) ([]models.Expense, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, 0, s.fail
	}
	var out []models.Expense
	for _, e := range s.expenses {
		if f.OwnerID != "" && e.OwnerID != f.OwnerID {
			continue
		}
		if f.DateFrom != nil && e.PurchaseDate.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && e.PurchaseDate.After(*f.DateTo) {
			continue
		}
		if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
			continue
		}
		if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
			continue
		}
		if len(f.CategoryIDs) > 0 {
			match := false
			for _, id := range f.CategoryIDs {
				if e.CategoryID != nil && *e.CategoryID == id {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, s.attach(*e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !strings.EqualFold(f.Order, "asc") {
			a, b = b, a
		}
		if f.SortBy == "amount" {
			return a.Amount.LessThan(b.Amount)
		}
		return a.PurchaseDate.Before(b.PurchaseDate)
	})
	total := int64(len(out))
	if f.Skip < len(out) {
		out = out[f.Skip:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *memStore) UpdateExpense(_ context.Context, id string, upd database.ExpenseUpdate) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID != id {
			continue
		}
		if upd.Vendor != nil {
			if strings.TrimSpace(*upd.Vendor) == "" {
				return nil, database.ErrEmptyVendor
			}
			e.Vendor = *upd.Vendor
		}
		if upd.Amount != nil {
			if upd.Amount.IsNegative() {
				return nil, database.ErrNegativeAmount
			}
			e.Amount = upd.Amount.Round(2)
		}
		if upd.PurchaseDate != nil {
			e.PurchaseDate = *upd.PurchaseDate
		}
		if upd.ClearCategory {
			e.CategoryID = nil
		} else if upd.CategoryID != nil {
			found := false
			for _, c := range s.categories {
				found = found || c.ID == *upd.CategoryID
			}
			if !found {
				return nil, database.ErrCategoryNotFound
			}
			v := *upd.CategoryID
			e.CategoryID = &v
		}
		out := s.attach(*e)
		return &out, nil
	}
	return nil, database.ErrExpenseNotFound
}

func (s *memStore) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return database.ErrExpenseNotFound
}

func (s *memStore) ExpensesBetween(_ context.Context, owner string, from, to time.Time) ([]models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	var out []models.Expense
	for _, e := range s.expenses {
		if owner != "" && e.OwnerID != owner {
			continue
		}
		if e.PurchaseDate.Before(from) || e.PurchaseDate.After(to) {
			continue
		}
		out = append(out, s.attach(*e))
	}
	return out, nil
}
