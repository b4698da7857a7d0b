package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensebot/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
	ErrDefaultCategory  = errors.New("default category cannot be deleted")
	ErrExpenseNotFound  = errors.New("expense not found")
	ErrEmptyVendor      = errors.New("vendor cannot be empty")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrEmptyName        = errors.New("category name cannot be empty")
)

// Repository 类别与消费记录的数据访问
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建数据访问实例
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// EnsureDefaultCategories 类别表为空时写入默认类别
func (r *Repository) EnsureDefaultCategories(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	var cats []models.Category
	for i, d := range models.DefaultCategories() {
		cats = append(cats, models.Category{
			Name:      d.Name,
			Color:     d.Color,
			Icon:      d.Icon,
			IsDefault: d.IsDefault,
			Sort:      (i + 1) * 10,
		})
	}
	return r.db.WithContext(ctx).Create(&cats).Error
}

// ListCategories 按排序值返回全部类别
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := r.db.WithContext(ctx).Order("sort ASC, id ASC").Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

// FindCategory 按 ID 查询类别
func (r *Repository) FindCategory(ctx context.Context, id uint) (*models.Category, error) {
	var cat models.Category
	if err := r.db.WithContext(ctx).First(&cat, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &cat, nil
}

// FindCategoryByName 按名称查询类别（不区分大小写）
func (r *Repository) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var cat models.Category
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&cat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &cat, nil
}

// CreateCategory 创建类别，名称不区分大小写唯一
func (r *Repository) CreateCategory(ctx context.Context, cat *models.Category) error {
	cat.Name = strings.TrimSpace(cat.Name)
	if cat.Name == "" {
		return ErrEmptyName
	}
	if _, err := r.FindCategoryByName(ctx, cat.Name); err == nil {
		return ErrCategoryExists
	} else if !errors.Is(err, ErrCategoryNotFound) {
		return err
	}
	cat.IsDefault = false
	return r.db.WithContext(ctx).Create(cat).Error
}

// CategoryUpdate 类别可修改字段，nil 表示不修改
type CategoryUpdate struct {
	Name  *string
	Color *string
	Icon  *string
}

// UpdateCategory 重命名、修改颜色或图标
func (r *Repository) UpdateCategory(ctx context.Context, id uint, upd CategoryUpdate) (*models.Category, error) {
	cat, err := r.FindCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		if !strings.EqualFold(name, cat.Name) {
			existing, err := r.FindCategoryByName(ctx, name)
			if err == nil && existing.ID != id {
				return nil, ErrCategoryExists
			}
			if err != nil && !errors.Is(err, ErrCategoryNotFound) {
				return nil, err
			}
		}
		updates["name"] = name
	}
	if upd.Color != nil {
		updates["color"] = *upd.Color
	}
	if upd.Icon != nil {
		updates["icon"] = *upd.Icon
	}
	if len(updates) == 0 {
		return cat, nil
	}
	if err := r.db.WithContext(ctx).Model(cat).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.FindCategory(ctx, id)
}

// DeleteCategory 删除类别，关联消费记录的类别置空，返回受影响的记录数
func (r *Repository) DeleteCategory(ctx context.Context, id uint) (int64, error) {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cat models.Category
		if err := tx.First(&cat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		if cat.IsDefault {
			return ErrDefaultCategory
		}
		res := tx.Model(&models.Expense{}).Where("category_id = ?", id).Update("category_id", nil)
		if res.Error != nil {
			return res.Error
		}
		detached = res.RowsAffected
		return tx.Delete(&models.Category{}, id).Error
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}

// CreateExpense 保存消费记录
func (r *Repository) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.CategoryID != nil {
		if _, err := r.FindCategory(ctx, *e.CategoryID); err != nil {
			return err
		}
	}
	if err := r.db.WithContext(ctx).Omit("Category").Create(e).Error; err != nil {
		return fmt.Errorf("保存消费记录失败: %w", err)
	}
	return nil
}

// FindExpense 按 ID 查询消费记录
func (r *Repository) FindExpense(ctx context.Context, id string) (*models.Expense, error) {
	var e models.Expense
	if err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ExpenseFilter 消费记录查询条件
type ExpenseFilter struct {
	OwnerID     string
	DateFrom    *time.Time
	DateTo      *time.Time
	CategoryIDs []uint
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	SortBy      string
	Order       string
	Limit       int
	Skip        int
}

var sortColumns = map[string]string{
	"amount":        "amount",
	"vendor":        "vendor",
	"created_at":    "created_at",
	"purchase_date": "purchase_date",
}

func (f ExpenseFilter) apply(q *gorm.DB) *gorm.DB {
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.DateFrom != nil {
		q = q.Where("purchase_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("purchase_date <= ?", *f.DateTo)
	}
	if len(f.CategoryIDs) > 0 {
		q = q.Where("category_id IN ?", f.CategoryIDs)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	return q
}

// ListExpenses 分页查询消费记录，返回记录与总数
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, int64, error) {
	var total int64
	if err := f.apply(r.db.WithContext(ctx).Model(&models.Expense{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "purchase_date"
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var list []models.Expense
	err := f.apply(r.db.WithContext(ctx)).
		Preload("Category").
		Order(column + " " + direction).
		Limit(limit).
		Offset(f.Skip).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ExpensesBetween 查询日期区间内（含两端）的全部消费记录
func (r *Repository) ExpensesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Expense, error) {
	var list []models.Expense
	q := r.db.WithContext(ctx).Preload("Category").
		Where("purchase_date >= ? AND purchase_date <= ?", from, to)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Order("purchase_date ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ExpenseUpdate 消费记录可修改字段，nil 表示不修改
type ExpenseUpdate struct {
	Vendor        *string
	Amount        *decimal.Decimal
	Currency      *string
	PurchaseDate  *time.Time
	CategoryID    *uint
	ClearCategory bool
}

// UpdateExpense 修改消费记录
func (r *Repository) UpdateExpense(ctx context.Context, id string, upd ExpenseUpdate) (*models.Expense, error) {
	e, err := r.FindExpense(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Vendor != nil {
		vendor := strings.TrimSpace(*upd.Vendor)
		if vendor == "" {
			return nil, ErrEmptyVendor
		}
		updates["vendor"] = vendor
	}
	if upd.Amount != nil {
		if upd.Amount.IsNegative() {
			return nil, ErrNegativeAmount
		}
		updates["amount"] = upd.Amount.Round(2)
	}
	if upd.Currency != nil && strings.TrimSpace(*upd.Currency) != "" {
		updates["currency"] = strings.ToUpper(strings.TrimSpace(*upd.Currency))
	}
	if upd.PurchaseDate != nil {
		updates["purchase_date"] = *upd.PurchaseDate
	}
	switch {
	case upd.ClearCategory:
		updates["category_id"] = nil
	case upd.CategoryID != nil:
		if _, err := r.FindCategory(ctx, *upd.CategoryID); err != nil {
			return nil, err
		}
		updates["category_id"] = *upd.CategoryID
	}
	if len(updates) == 0 {
		return e, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.Expense{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.FindExpense(ctx, id)
}

// DeleteExpense 删除消费记录
func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Expense{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}
