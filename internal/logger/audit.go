package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：
// 决策审计日志：把每一次顾问请求/响应与最终决策完整落盘，
// 与运行日志分离，便于事后复盘某一笔决策是如何产生的。

var (
	auditMu       sync.Mutex
	auditLog      *log.Logger
	auditPayloads bool
)

func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

// EnableAuditPayloadDump 控制是否附带原始请求载荷（可能很大）。
func EnableAuditPayloadDump(enabled bool) {
	auditMu.Lock()
	auditPayloads = enabled
	auditMu.Unlock()
}

type auditSection struct {
	Title string
	Body  string
}

func logAudit(kind, provider, purpose string, sections []auditSection) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	for _, tag := range []string{kind, provider, purpose} {
		if tag != "" {
			b.WriteString("[")
			b.WriteString(tag)
			b.WriteString("]")
		}
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// AuditAdvisorRequest 记录发往单个顾问的提示词。
func AuditAdvisorRequest(provider, purpose, system, user, payload string) {
	sections := []auditSection{
		{Title: "SYSTEM", Body: system},
		{Title: "USER", Body: user},
	}
	auditMu.Lock()
	dump := auditPayloads
	auditMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, auditSection{Title: "PAYLOAD", Body: payload})
	}
	logAudit("advisor-request", provider, purpose, sections)
}

// AuditAdvisorResponse 记录顾问原始返回。
func AuditAdvisorResponse(provider, purpose, raw string) {
	logAudit("advisor-response", provider, purpose, []auditSection{{Title: "RAW", Body: raw}})
}

// AuditDecision 记录最终聚合决策（含投票拆解），kind 区分 phase1/phase2/veto。
func AuditDecision(kind, asset, summary string) {
	logAudit("decision-"+kind, asset, "", []auditSection{{Title: "DECISION", Body: summary}})
}
