package resource

import "errors"

// Resource ドメインのエラー定義
var (
	ErrResourceNotFound     = errors.New("リソースが見つかりません")
	ErrResourceNameRequired = errors.New("リソース名は必須です")
	ErrInvalidCapacity      = errors.New("収容人数は1以上である必要があります")
)
