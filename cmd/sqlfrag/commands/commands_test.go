package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `tables:
  - name: Contact
    columns:
      - { name: id, type: INTEGER, autoIncrement: true }
      - { name: fullName, type: TEXT, required: true }
      - { name: email, type: TEXT, unique: true, index: true }
  - name: OrderLine
    columns:
      - { name: id, type: INTEGER, autoIncrement: true }
      - name: contactId
        type: INTEGER
        required: true
        references: { table: Contact }
      - { name: createdAt, type: DATETIME, default: "{NOW}" }
  - name: AuditLog
    columns:
      - { name: message, type: TEXT }
`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDDL(t *testing.T) {
	path := writeSchema(t)

	out, err := run(t, "--schema", path, "ddl", "-d", "postgres", "--naming", "snake", "--drop")
	require.NoError(t, err)
	assert.Contains(t, out, "-- Contact\nDROP TABLE IF EXISTS \"contact\";\nCREATE TABLE \"contact\" (\n")
	assert.Contains(t, out, "  \"full_name\" TEXT NOT NULL,\n")
	assert.Contains(t, out, "CREATE UNIQUE INDEX idx_contact_email ON \"contact\" (\"email\");\n\n-- OrderLine\n")
	assert.Contains(t, out, "  \"created_at\" TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,\n")
	assert.Contains(t, out, "FOREIGN KEY (\"contact_id\") REFERENCES \"contact\"(\"id\")")

	out, err = run(t, "--schema", path, "ddl")
	require.NoError(t, err)
	assert.Contains(t, out, "\"id\" INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.NotContains(t, out, "DROP TABLE")
}

func TestDDL_Errors(t *testing.T) {
	path := writeSchema(t)

	_, err := run(t, "--schema", path, "ddl", "-d", "oracle")
	assert.ErrorContains(t, err, `unknown dialect "oracle"`)

	_, err = run(t, "--schema", path, "--naming", "kebab", "ddl")
	assert.ErrorContains(t, err, "unknown naming strategy")

	_, err = run(t, "--schema", filepath.Join(t.TempDir(), "missing.yaml"), "ddl")
	assert.ErrorContains(t, err, "missing.yaml")
}

func TestDML(t *testing.T) {
	path := writeSchema(t)

	out, err := run(t, "--schema", path, "dml", "-d", "mysql", "-t", "Contact")
	require.NoError(t, err)
	assert.Equal(t, "-- insert\n"+
		"INSERT INTO `Contact` (`fullName`, `email`) VALUES ($fullName, $email)\n"+
		"-- update\n"+
		"UPDATE `Contact` SET `fullName`=$fullName, `email`=$email WHERE `id` = $id\n"+
		"-- delete\n"+
		"DELETE FROM `Contact` WHERE `id` = $id\n", out)

	out, err = run(t, "--schema", path, "dml", "-t", "AuditLog")
	require.NoError(t, err)
	assert.Equal(t, "-- insert\nINSERT INTO \"AuditLog\" (\"message\") VALUES ($message)\n", out)

	_, err = run(t, "--schema", path, "dml")
	assert.ErrorContains(t, err, "table")

	_, err = run(t, "--schema", path, "dml", "-t", "Nope")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	path := writeSchema(t)

	out, err := run(t, "--schema", path, "apply", "--dsn", ":memory:", "--drop")
	require.NoError(t, err)
	assert.Equal(t, "✓ Contact\n✓ OrderLine\n✓ AuditLog\n3 tables in database\n", out)

	t.Setenv("DATABASE_URL", "")
	_, err = run(t, "--schema", path, "apply")
	assert.ErrorContains(t, err, "no DSN")

	t.Setenv("DATABASE_URL", ":memory:")
	out, err = run(t, "--schema", path, "--naming", "snake", "apply", "--driver", "sqlite3")
	require.NoError(t, err)
	assert.Contains(t, out, "3 tables in database")

	_, err = run(t, "--schema", path, "apply", "--driver", "oracle", "--dsn", "x")
	assert.Error(t, err)
}
