package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// 金额以 JSON 数字输出
	decimal.MarshalJSONWithoutQuotes = true
}

// 记录来源
const (
	SourceText   = "text"
	SourceVoice  = "voice"
	SourceManual = "manual"
)

// DefaultVendor 无法识别商家时的占位名称
const DefaultVendor = "Cheltuială manuală"

// Expense 消费记录模型
type Expense struct {
	ID           string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	OwnerID      string          `json:"owner_id" gorm:"size:64;index;not null"`
	Source       string          `json:"source" gorm:"size:20;not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency     string          `json:"currency" gorm:"size:3;not null;default:MDL"`
	Vendor       string          `json:"vendor" gorm:"size:255;not null"`
	PurchaseDate time.Time       `json:"purchase_date" gorm:"type:date;index;not null"`
	CategoryID   *uint           `json:"category_id" gorm:"index"`
	Category     *Category       `json:"category,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`
	AIConfidence float64         `json:"ai_confidence"`
	Metadata     Metadata        `json:"metadata" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// BeforeCreate 生成主键并补齐必填字段
func (e *Expense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if strings.TrimSpace(e.Vendor) == "" {
		e.Vendor = DefaultVendor
	}
	if e.Currency == "" {
		return errors.New("expense currency is required")
	}
	return nil
}

// LineItem 明细行
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

// Metadata 附加信息（备注 + 明细），以 JSON 文本存储，配置密钥后加密存储
type Metadata struct {
	Notes      string     `json:"notes,omitempty"`
	Items      []LineItem `json:"items,omitempty"`
	RawText    string     `json:"raw_text,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	Provenance string     `json:"provenance,omitempty"`
}

// MetadataSealer 元数据加解密
type MetadataSealer interface {
	Seal(plain []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

var metadataSealer MetadataSealer

// SetMetadataSealer 设置元数据加密器，传 nil 关闭加密
func SetMetadataSealer(s MetadataSealer) {
	metadataSealer = s
}

// Value 实现 driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if metadataSealer == nil {
		return string(raw), nil
	}
	return metadataSealer.Seal(raw)
}

// Scan 实现 sql.Scanner，兼容未加密的历史数据
func (m *Metadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	if raw[0] != '{' {
		if metadataSealer == nil {
			return errors.New("metadata is sealed but no encryption key is configured")
		}
		opened, err := metadataSealer.Open(string(raw))
		if err != nil {
			return fmt.Errorf("open metadata: %w", err)
		}
		raw = opened
	}
	return json.Unmarshal(raw, m)
}
