// Package natives installs the VM's built-in (host-provided) function
// library (spec §6's "Built-in interface"): database and websocket access,
// via database/sql plus blank-imported drivers and gorilla/websocket,
// registered as Native objects under fixed global names. Grounded in
// _examples/sentra-language-sentra/internal/vm/database_bindings.go's
// registration pattern and internal/database/db_manager.go's driver-name
// mapping, generalized from the teacher's interface{}-typed Value to the
// tagged-union value.Value.
package natives

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"piscript/internal/hashmap"
	"piscript/internal/value"
	"piscript/internal/vm"
)

// driverFor maps the language-facing database type name to a registered
// database/sql driver name, following db_manager.go's Connect dispatch.
func driverFor(dbType string) (string, error) {
	switch dbType {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mssql", "sqlserver":
		return "mssql", nil
	case "modernc-sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

type dbManager struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

func newDBManager() *dbManager {
	return &dbManager{conns: make(map[string]*sql.DB)}
}

func (m *dbManager) open(id, dbType, dsn string) error {
	driver, err := driverFor(dbType)
	if err != nil {
		return err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[id] = db
	return nil
}

func (m *dbManager) get(id string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("no open database connection %q", id)
	}
	return db, nil
}

func (m *dbManager) close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.conns[id]
	if !ok {
		return fmt.Errorf("no open database connection %q", id)
	}
	delete(m.conns, id)
	return db.Close()
}

// RegisterDatabase installs db_open/db_query/db_exec/db_close as globals on v.
func RegisterDatabase(v *vm.VM) {
	m := newDBManager()

	v.RegisterNative("db_open", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 3 {
			return value.Nil(), fmt.Errorf("db_open expects (id, type, dsn)")
		}
		id, dbType, dsn := argv[0].AsString(), argv[1].AsString(), argv[2].AsString()
		if err := m.open(id, dbType, dsn); err != nil {
			return value.Bool(false), err
		}
		return value.Bool(true), nil
	})

	v.RegisterNative("db_close", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 1 {
			return value.Nil(), fmt.Errorf("db_close expects (id)")
		}
		if err := m.close(argv[0].AsString()); err != nil {
			return value.Bool(false), err
		}
		return value.Bool(true), nil
	})

	v.RegisterNative("db_exec", func(argv []value.Value) (value.Value, error) {
		if len(argv) < 2 {
			return value.Nil(), fmt.Errorf("db_exec expects (id, query, [args...])")
		}
		db, err := m.get(argv[0].AsString())
		if err != nil {
			return value.Nil(), err
		}
		res, err := db.Exec(argv[1].AsString(), toGoArgs(argv[2:])...)
		if err != nil {
			return value.Nil(), err
		}
		affected, _ := res.RowsAffected()
		return value.Num(float64(affected)), nil
	})

	v.RegisterNative("db_query", func(argv []value.Value) (value.Value, error) {
		if len(argv) < 2 {
			return value.Nil(), fmt.Errorf("db_query expects (id, query, [args...])")
		}
		db, err := m.get(argv[0].AsString())
		if err != nil {
			return value.Nil(), err
		}
		rows, err := db.Query(argv[1].AsString(), toGoArgs(argv[2:])...)
		if err != nil {
			return value.Nil(), err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return value.Nil(), err
		}

		var result []value.Value
		for rows.Next() {
			scanned := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range scanned {
				ptrs[i] = &scanned[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return value.Nil(), err
			}
			table := hashmap.New[value.Value]()
			for i, col := range cols {
				table.Put(col, fromGoValue(v, scanned[i]))
			}
			rowObj := v.Track(value.NewMap(table))
			result = append(result, value.Obj(rowObj))
		}
		listObj := v.Track(value.NewList(result))
		return value.Obj(listObj), nil
	})
}

func toGoArgs(argv []value.Value) []interface{} {
	out := make([]interface{}, len(argv))
	for i, a := range argv {
		switch {
		case a.IsNil():
			out[i] = nil
		case a.IsBool():
			out[i] = a.AsBool()
		case a.IsNumeric():
			out[i] = a.Num
		case a.IsString():
			out[i] = a.Obj.AsString().Data
		default:
			out[i] = a.AsString()
		}
	}
	return out
}

func fromGoValue(v *vm.VM, val interface{}) value.Value {
	switch t := val.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.Bool(t)
	case int64:
		return value.Num(float64(t))
	case float64:
		return value.Num(t)
	case []byte:
		return value.Obj(v.Track(value.NewString(string(t))))
	case string:
		return value.Obj(v.Track(value.NewString(t)))
	default:
		return value.Obj(v.Track(value.NewString(fmt.Sprintf("%v", t))))
	}
}
