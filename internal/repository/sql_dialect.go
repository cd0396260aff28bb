package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// likeOperatorByDialect 选择不区分大小写的模糊匹配操作符。
// sqlite 的 LIKE 默认不区分大小写，postgres 需要 ILIKE。
func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// buildNameLikeCondition 构建按名称模糊检索的条件与参数。
func buildNameLikeCondition(db *gorm.DB, column, keyword string) (string, string) {
	operator := likeOperatorByDialect(dbDialectName(db))
	return fmt.Sprintf("%s %s ?", column, operator), "%" + keyword + "%"
}
