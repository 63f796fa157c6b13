package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanContextKey struct{}

// queryTracer records every pgx query as a db.query span when the context carries a transaction.
type queryTracer struct {
	maxStatementLen int
}

func newQueryTracer() *queryTracer {
	return &queryTracer{maxStatementLen: 512}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := t.statement(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")

	operation, table := describeStatement(statement)
	if operation != "" {
		span.SetData("db.operation", operation)
	}
	if table != "" {
		span.SetData("db.sql.table", table)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}

	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}

	span.Finish()
}

func (t *queryTracer) statement(sql string) string {
	normalized := strings.Join(strings.Fields(sql), " ")
	if normalized == "" {
		return "sql.query"
	}
	if t.maxStatementLen > 0 && len(normalized) > t.maxStatementLen {
		return normalized[:t.maxStatementLen]
	}
	return normalized
}

// describeStatement returns the leading SQL verb and the first table it touches.
func describeStatement(statement string) (string, string) {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return "", ""
	}

	operation := strings.ToUpper(fields[0])
	marker := ""
	switch operation {
	case "SELECT", "DELETE":
		marker = "FROM"
	case "INSERT":
		marker = "INTO"
	case "UPDATE":
		if len(fields) > 1 {
			return operation, fields[1]
		}
		return operation, ""
	default:
		return operation, ""
	}

	for i := 1; i < len(fields)-1; i++ {
		if strings.EqualFold(fields[i], marker) {
			return operation, strings.Trim(fields[i+1], "(")
		}
	}
	return operation, ""
}
