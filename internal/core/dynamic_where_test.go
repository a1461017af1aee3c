package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDynamicWhere(t *testing.T) {
	tests := []struct {
		method string
		want   []DynamicClause
	}{
		{"WhereEmail", []DynamicClause{{"email", "and"}}},
		{"whereName", []DynamicClause{{"name", "and"}}},
		{"WhereEmailAndStatusOrRole", []DynamicClause{{"email", "and"}, {"status", "and"}, {"role", "or"}}},
		{"WhereBrand", []DynamicClause{{"brand", "and"}}},
		{"WhereOrder", []DynamicClause{{"order", "and"}}},
		{"WhereUserIdAndOrderId", []DynamicClause{{"user_id", "and"}, {"order_id", "and"}}},
		{"WhereBrandOrAndroid", []DynamicClause{{"brand", "and"}, {"android", "or"}}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := ParseDynamicWhere(tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDynamicWhere_Errors(t *testing.T) {
	for _, method := range []string{"FindByEmail", "Where", "where"} {
		_, err := ParseDynamicWhere(method)
		assert.ErrorIs(t, err, ErrInvalidArgument, method)
	}
}

func TestBuilder_DynamicWhere(t *testing.T) {
	b := sqlFor("postgres").From("users").DynamicWhere("WhereStatusOrRole", "active", "admin")
	sql, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `select * from "users" where "status" = ? or "role" = ?`, sql)
	assert.Equal(t, []any{"active", "admin"}, b.Bindings())

	_, err = sqlFor("postgres").From("users").DynamicWhere("WhereStatusOrRole", "active").ToSQL()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = sqlFor("postgres").From("users").DynamicWhere("ByStatus", "x").ToSQL()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
