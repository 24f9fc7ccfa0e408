// Package oluacle is a thin call-level client for Oracle built on OCI.
//
// Host values have three kinds: null, number and string. They are bound as
// statement parameters and fetched back from result rows. NUMBER columns come
// back as float64 and DATE columns as text in the session date format. Columns
// of any other type outside the string and integer families read as nothing.
//
//	env := oluacle.NewEnvironment(lib)
//	conn, err := oluacle.Connect(env, "scott", "tiger", "orcl")
//	...
//	res, err := conn.Exec("SELECT ENAME, SAL FROM EMP WHERE DEPTNO = :d", map[string]any{"d": 10})
//	for row, err := range res.Rows() {
//		...
//	}
//
// Native resources are released by Close on connections and statements. A
// statement is also finalized when Fetch reaches the end of its result set.
// Finalizers exist only as a safety net.
//
// The package also registers a database/sql driver named "oluacle".
package oluacle
