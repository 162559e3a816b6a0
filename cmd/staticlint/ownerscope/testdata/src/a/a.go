package a

import (
	"context"
	"database/sql"
	"fmt"
)

const recordColumns = "id, title, amount"

func rebind(query string) string { return query }

func scoped(ctx context.Context, db *sql.DB, tx *sql.Tx, table string) {
	db.QueryRowContext(ctx, `SELECT id FROM expenses WHERE id = $1 AND user_id = $2`, 1, 2)
	db.ExecContext(ctx, rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, table)), 1, 2)
	db.Exec(`INSERT INTO expenses (id, user_id, title) VALUES (?, ?, ?)`, 1, 2, 3)
	tx.QueryContext(ctx, `SELECT `+recordColumns+` FROM invoices WHERE user_id = ?`, 1)
	db.Exec(`DELETE FROM revoked_sessions WHERE expires_at <= ?`, 1)
	db.QueryRow(`SELECT COUNT(*) FROM users`)
}

func unscoped(ctx context.Context, db *sql.DB, tx *sql.Tx, table string) {
	db.QueryRowContext(ctx, `SELECT id FROM expenses WHERE id = $1`, 1) // want `query on owned table "expenses" has no user_id predicate`
	db.ExecContext(ctx, rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)), 1) // want `query on owned table "%s" has no user_id predicate`
	db.Query(`SELECT ` + recordColumns + ` FROM invoices`) // want `owned table "invoices"`
	tx.Exec(`UPDATE invoices SET title = 'x'`) // want `owned table "invoices"`
	db.Exec(`INSERT INTO expenses (id, title) VALUES (?, ?)`, 1, 2) // want `owned table "expenses"`
	db.Prepare(`SELECT id FROM expenses`) // want `owned table "expenses"`
	db.QueryRow(`SELECT (SELECT COUNT(*) FROM expenses) + (SELECT COUNT(*) FROM invoices)`) // want `owned table "expenses"`
}

func allowed(db *sql.DB, query string) {
	//ownerscope:allow
	db.QueryRow(`SELECT COUNT(*) FROM expenses`)
	db.QueryRow(`SELECT COUNT(*) FROM invoices`) //ownerscope:allow global count

	db.QueryRow(
		//ownerscope:allow
		`SELECT COUNT(*) FROM expenses`,
	)

	db.Query(query)
	db.Query(`SELECT id FROM expenses_archive`)
}
