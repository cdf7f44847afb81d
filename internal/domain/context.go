package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Severity 告警严重级别
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityRank 级别排序，用于阈值比较
var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// Valid 判断级别是否合法
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast 判断当前级别是否达到阈值
func (s Severity) AtLeast(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// MaxSeverity 返回告警列表中的最高级别，空列表返回 ""
func MaxSeverity(alerts []Alert) Severity {
	var max Severity
	for _, a := range alerts {
		if severityRank[a.Severity] > severityRank[max] {
			max = a.Severity
		}
	}
	return max
}

// Alert 条款内容触发的结构化风险告警
type Alert struct {
	Key      string   `json:"key"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Suggestion 非阻塞的起草建议
type Suggestion struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// ClauseRecord 文档 content 中单个条款的累积记录
// 按条款 order_num 作为 key 存储，一个条款至多一条记录
type ClauseRecord struct {
	SectionName string       `json:"section_name"`
	VariantKey  string       `json:"variant_key,omitempty"`
	Text        string       `json:"text,omitempty"`
	Skipped     bool         `json:"skipped,omitempty"`
	Alerts      []Alert      `json:"alerts,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// DocumentContent 文档内容映射：条款 order_num（十进制字符串）-> 记录
type DocumentContent map[string]ClauseRecord

// Record 按 order_num 读取记录
func (c DocumentContent) Record(orderNum int) (ClauseRecord, bool) {
	rec, ok := c[strconv.Itoa(orderNum)]
	return rec, ok
}

// Set 按 order_num 写入记录
func (c DocumentContent) Set(orderNum int, rec ClauseRecord) {
	c[strconv.Itoa(orderNum)] = rec
}

// OrderedRecords 按 order_num 升序返回所有记录
func (c DocumentContent) OrderedRecords() []ClauseRecord {
	orders := make([]int, 0, len(c))
	for k := range c {
		if n, err := strconv.Atoi(k); err == nil {
			orders = append(orders, n)
		}
	}
	sort.Ints(orders)
	records := make([]ClauseRecord, 0, len(orders))
	for _, n := range orders {
		records = append(records, c[strconv.Itoa(n)])
	}
	return records
}

// Context 条款处理上下文：调用方参数 + 已完成条款的累积内容
// 谓词、生成与评估均基于该上下文
type Context struct {
	Params  map[string]any  `json:"params"`
	Content DocumentContent `json:"content"`
}

// NewContext 构建上下文
func NewContext(params map[string]any, content DocumentContent) *Context {
	if params == nil {
		params = map[string]any{}
	}
	if content == nil {
		content = DocumentContent{}
	}
	return &Context{Params: params, Content: content}
}

// Lookup 解析字段引用
// 裸字段名指向 Params；"clauses.<order>.<attr>" 指向已完成条款，
// attr 可为 text、variant、skipped、section
func (c *Context) Lookup(field string) (any, bool) {
	if strings.HasPrefix(field, "clauses.") {
		parts := strings.SplitN(field, ".", 3)
		if len(parts) != 3 {
			return nil, false
		}
		orderNum, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, false
		}
		rec, ok := c.Content.Record(orderNum)
		if !ok {
			return nil, false
		}
		switch parts[2] {
		case "text":
			return rec.Text, true
		case "variant":
			return rec.VariantKey, true
		case "skipped":
			return rec.Skipped, true
		case "section":
			return rec.SectionName, true
		}
		return nil, false
	}

	v, ok := c.Params[field]
	return v, ok
}

// SortedKeys 返回 map 的 key 按字典序排序后的切片
// 条款配置均为 map 存储，评估顺序必须确定且可复现
func SortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
