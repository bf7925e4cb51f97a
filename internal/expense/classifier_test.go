package expense

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name string
		e    Expense
		want Class
	}{
		{
			name: "system wins over every category",
			e:    Expense{Type: TypeSystem, Category: CategoryEmployeeDues, Status: StatusApproved},
			want: ClassSystem,
		},
		{
			name: "employee dues by category",
			e:    Expense{Type: TypeOrdinary, Category: CategoryEmployeeDues, Status: StatusApproved},
			want: ClassEmployeeDues,
		},
		{
			name: "employee dues by nested meta category",
			e:    Expense{Type: TypeOrdinary, Category: "salaries", Meta: map[string]any{"category": CategoryEmployeeDues}},
			want: ClassEmployeeDues,
		},
		{
			name: "dues wins over purchase marker in meta",
			e:    Expense{Type: TypeOrdinary, Category: CategoryEmployeeDues, Meta: map[string]any{"category": CategoryPurchase}},
			want: ClassEmployeeDues,
		},
		{
			name: "purchase by category",
			e:    Expense{Type: TypeOrdinary, Category: CategoryPurchase, Status: StatusApproved},
			want: ClassPurchaseRelated,
		},
		{
			name: "purchase by nested meta category",
			e:    Expense{Type: TypeOrdinary, Category: "stok", Meta: map[string]any{"category": CategoryPurchase}},
			want: ClassPurchaseRelated,
		},
		{
			name: "approved ordinary is general",
			e:    Expense{Type: TypeOrdinary, Category: "electricity", Status: StatusApproved},
			want: ClassGeneral,
		},
		{
			name: "missing status is general",
			e:    Expense{Type: TypeOrdinary, Category: "rent"},
			want: ClassGeneral,
		},
		{
			name: "pending ordinary excluded from general",
			e:    Expense{Type: TypeOrdinary, Category: "rent", Status: StatusPending},
			want: ClassExcluded,
		},
		{
			name: "rejected ordinary excluded from general",
			e:    Expense{Type: TypeOrdinary, Category: "rent", Status: StatusRejected},
			want: ClassExcluded,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.e))
		})
	}
}

func TestClassifyIgnoresNonStringMeta(t *testing.T) {
	e := Expense{Type: TypeOrdinary, Category: "misc", Meta: map[string]any{"category": 42}, Status: StatusApproved}
	require.Equal(t, ClassGeneral, Classify(e))
}
