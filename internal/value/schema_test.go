package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinedSchema() Schema {
	return NewSchema(
		Column{Qualifier: "sql", Name: "OrderID", Type: TypeInt},
		Column{Qualifier: "sql", Name: "OrderDate", Type: TypeDate},
		Column{Qualifier: "excel", Name: "OrderID", Type: TypeInt},
		Column{Qualifier: "excel", Name: "SalesPerson", Type: TypeString},
	)
}

func TestSchemaIndex(t *testing.T) {
	s := joinedSchema()

	i, err := s.Index("excel", "OrderID")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i, err = s.Index("", "SalesPerson")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = s.Index("", "OrderID")
	assert.ErrorIs(t, err, ErrAmbiguousColumn)

	_, err = s.Index("sql", "SalesPerson")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestSchemaNames(t *testing.T) {
	s := joinedSchema()
	assert.Equal(t, []string{"OrderID", "OrderDate", "OrderID", "SalesPerson"}, s.Names())
	assert.Equal(t, []string{"sql.OrderID", "sql.OrderDate", "excel.OrderID", "excel.SalesPerson"}, s.QualifiedNames())
	assert.Equal(t, []string{"sql", "excel"}, s.Qualifiers())
}

func TestSchemaQualifiedCopies(t *testing.T) {
	s := joinedSchema()
	q := s.Qualified("u")
	assert.Equal(t, []string{"u"}, q.Qualifiers())
	assert.Equal(t, "sql", s.Columns[0].Qualifier, "original schema is untouched")
}

func TestTypeCompatibility(t *testing.T) {
	assert.True(t, Compatible(TypeInt, TypeFloat))
	assert.True(t, Compatible(TypeString, TypeDate))
	assert.True(t, Compatible(TypeAny, TypeArray))
	assert.False(t, Compatible(TypeString, TypeInt))
	assert.False(t, Compatible(TypeBool, TypeInt))

	assert.False(t, Comparable(TypeArray, TypeArray))
	assert.True(t, Comparable(TypeDate, TypeString))
}

func TestParseType(t *testing.T) {
	for typ, name := range typeNames {
		got, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("decimal")
	assert.Error(t, err)
}

func TestColumnField(t *testing.T) {
	c := Column{Name: "Supplier", Type: TypeObject, Fields: []Column{{Name: "Name", Type: TypeString}}}
	assert.True(t, c.HasShape())
	f, ok := c.Field("Name")
	assert.True(t, ok)
	assert.Equal(t, TypeString, f.Type)
	_, ok = c.Field("City")
	assert.False(t, ok)
}
