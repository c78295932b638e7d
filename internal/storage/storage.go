package storage

import "tradeScope/internal/model"

// NoticeStore is a sink for streamed notices.
type NoticeStore interface {
	PutNotices(notices []model.Notice) error
}
