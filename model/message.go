package model

// Message is a persisted direct message. Sender and Receiver hold internal
// user ids. Messages are never edited after creation.
type Message struct {
	Base
	Sender   string `json:"sender" gorm:"size:36;index:idx_messages_pair,priority:1;not null"`
	Receiver string `json:"receiver" gorm:"size:36;index:idx_messages_pair,priority:2;not null"`
	Content  string `json:"content" gorm:"type:text;not null"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
