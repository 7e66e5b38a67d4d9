package domain

// DateLayout is the absolute date format every ExpenseInfo carries on the way out.
const DateLayout = "2006-01-02"

// ChatMessage is one inbound chat turn from the client application.
// Context holds the caller's prior messages, oldest first; it is only read here.
type ChatMessage struct {
	Message   string   `json:"message"`
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id"`
	Context   []string `json:"context"`
}

// ExpenseInfo represents one extracted transaction.
// Amount is always a magnitude; direction lives in IsIncome.
type ExpenseInfo struct {
	Date          string  `json:"date"`   // YYYY-MM-DD
	Amount        float64 `json:"amount"` // >= 0
	Category      string  `json:"category"`
	Subcategory   string  `json:"subcategory,omitempty"`
	Place         string  `json:"place,omitempty"`
	Memo          string  `json:"memo,omitempty"`
	IsIncome      bool    `json:"is_income"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	Confidence    float64 `json:"confidence"` // clamped to [0,1]
}

// RejectedItem describes an extracted item that failed validation and was dropped.
type RejectedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// NLPResponse is the result of the chat extraction path. It is also the value
// stored in the request cache, serialized as JSON.
type NLPResponse struct {
	Success              bool           `json:"success"`
	Expenses             []ExpenseInfo  `json:"expenses"`
	ClarificationNeeded  bool           `json:"clarification_needed"`
	ClarificationMessage *string        `json:"clarification_message"`
	ConversationContext  []string       `json:"conversation_context"`
	Rejected             []RejectedItem `json:"rejected,omitempty"`
}

// ExcelAnalysisResponse is the result of the spreadsheet analysis path.
// PreviewData and TotalRows are filled even when the column mapping call fails;
// in that case Success is false and MappingError explains why.
type ExcelAnalysisResponse struct {
	Success       bool                     `json:"success"`
	ColumnMapping map[string]string        `json:"column_mapping"`
	PreviewData   []map[string]interface{} `json:"preview_data"`
	TotalRows     int                      `json:"total_rows"`
	Confidence    float64                  `json:"confidence"`
	MappingError  *ErrorBody               `json:"mapping_error,omitempty"`
}

// RowResult is the result of processing a single mapped spreadsheet row.
type RowResult struct {
	Success     bool        `json:"success"`
	ExpenseInfo ExpenseInfo `json:"expense_info"`
}
