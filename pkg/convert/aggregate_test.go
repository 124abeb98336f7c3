package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/docbin/pkg/docvalue"
)

type person struct {
	Name  string
	City  string
	Age   int
	Email *string
	Nick  *string
}

func registerPerson() {
	Struct[person]("Person").
		Fields(
			Field("name", func(p *person) *string { return &p.Name }),
			Field("city", func(p *person) *string { return &p.City }),
			Field("age", func(p *person) *int { return &p.Age }),
			Field("email", func(p *person) **string { return &p.Email }),
			Field("nick", func(p *person) **string { return &p.Nick }),
		).
		Mandatory(3).
		Register()
}

func personObject(members map[string]*docvalue.Value) *docvalue.Value {
	obj := docvalue.NewObject()
	for _, key := range []string{"name", "city", "age", "email", "nick"} {
		if v, ok := members[key]; ok {
			obj.Set(key, v)
		}
	}
	return docvalue.ObjectValue(obj)
}

func TestAggregateMandatoryOptionalSplit(t *testing.T) {
	registerPerson()

	full := map[string]*docvalue.Value{
		"name": docvalue.String("Hana"),
		"city": docvalue.String("Kobe"),
		"age":  docvalue.Int(31),
	}

	// Only the three mandatory members: optional fields default.
	p, err := As[person](personObject(full))
	require.NoError(t, err)
	assert.Equal(t, "Hana", p.Name)
	assert.Equal(t, 31, p.Age)
	assert.Nil(t, p.Email)
	assert.Nil(t, p.Nick)

	// Omitting any one mandatory member names exactly that member.
	for _, missing := range []string{"name", "city", "age"} {
		partial := map[string]*docvalue.Value{}
		for k, v := range full {
			if k != missing {
				partial[k] = v
			}
		}
		_, err := As[person](personObject(partial))
		require.Error(t, err, "missing %s", missing)
		assert.Equal(t, docvalue.MissingRequiredMember, docvalue.KindOf(err))
		assert.Contains(t, err.Error(), "Person: "+missing)
	}
}

func TestAggregateOptionalEmission(t *testing.T) {
	registerPerson()

	email := "hana@example.com"
	withOpt := person{Name: "Hana", City: "Kobe", Age: 31, Email: &email}

	v, err := ToValue(withOpt)
	require.NoError(t, err)
	obj, err := v.Object()
	require.NoError(t, err)

	// Set optional members emit, unset ones are omitted entirely.
	_, hasEmail := obj.Get("email")
	_, hasNick := obj.Get("nick")
	assert.True(t, hasEmail)
	assert.False(t, hasNick)
	assert.Equal(t, 4, obj.Len())

	back, err := As[person](v)
	require.NoError(t, err)
	assert.Equal(t, withOpt, back)
}

// The same aggregate declared through getter/setter pairs must produce
// identical wire output.
type personGS struct {
	name string
	age  int
}

func (p *personGS) Name() string     { return p.name }
func (p *personGS) SetName(s string) { p.name = s }
func (p *personGS) Age() int         { return p.age }
func (p *personGS) SetAge(a int)     { p.age = a }

func TestAggregateGetterSetterShape(t *testing.T) {
	Struct[personGS]("PersonGS").
		Fields(
			FieldGetSet("name", (*personGS).Name, (*personGS).SetName),
			FieldGetSet("age", (*personGS).Age, (*personGS).SetAge),
		).
		Register()

	type direct struct {
		name string
		age  int
	}
	Struct[direct]("PersonDirect").
		Fields(
			Field("name", func(d *direct) *string { return &d.name }),
			Field("age", func(d *direct) *int { return &d.age }),
		).
		Register()

	gsVal, err := ToValue(personGS{name: "Aki", age: 40})
	require.NoError(t, err)
	directVal, err := ToValue(direct{name: "Aki", age: 40})
	require.NoError(t, err)
	assert.True(t, gsVal.Equal(directVal))

	back, err := As[personGS](gsVal)
	require.NoError(t, err)
	assert.Equal(t, "Aki", back.Name())
	assert.Equal(t, 40, back.Age())
}

// Constructor-argument shape: immutable builder style.
type span struct {
	lo, hi int
}

func (s span) Lo() int { return s.lo }
func (s span) Hi() int { return s.hi }

func TestAggregateCtorShape(t *testing.T) {
	RegisterStructCtor("Span", 2,
		func(args []any) (span, error) {
			return span{lo: args[0].(int), hi: args[1].(int)}, nil
		},
		CtorArg("lo", func(s *span) int { return s.lo }),
		CtorArg("hi", func(s *span) int { return s.hi }),
	)

	v, err := ToValue(span{lo: 3, hi: 9})
	require.NoError(t, err)

	back, err := As[span](v)
	require.NoError(t, err)
	assert.Equal(t, span{lo: 3, hi: 9}, back)

	obj := docvalue.NewObject()
	obj.Set("hi", docvalue.Int(9))
	_, err = As[span](docvalue.ObjectValue(obj))
	assert.Equal(t, docvalue.MissingRequiredMember, docvalue.KindOf(err))
	assert.Contains(t, err.Error(), "Span: lo")
}

type shape interface{ area() float64 }

type circle struct {
	Radius float64
}

func (c circle) area() float64 { return 3.14159 * c.Radius * c.Radius }

type rect struct {
	Width, Height float64
}

func (r rect) area() float64 { return r.Width * r.Height }

func registerShapes() {
	Struct[circle]("Circle").
		Fields(Field("radius", func(c *circle) *float64 { return &c.Radius })).
		Register()
	Struct[rect]("Rect").
		Fields(
			Field("width", func(r *rect) *float64 { return &r.Width }),
			Field("height", func(r *rect) *float64 { return &r.Height }),
		).
		Register()
	RegisterPolymorphic[shape](Alt[circle](), Alt[rect]())
}

func TestPolymorphicClosedSetDispatch(t *testing.T) {
	registerShapes()

	obj := docvalue.NewObject()
	obj.Set("radius", docvalue.Float(2))
	got, err := As[shape](docvalue.ObjectValue(obj))
	require.NoError(t, err)
	c, ok := got.(circle)
	require.True(t, ok, "expected circle, got %T", got)
	assert.Equal(t, 2.0, c.Radius)

	obj = docvalue.NewObject()
	obj.Set("width", docvalue.Float(3))
	obj.Set("height", docvalue.Float(4))
	got, err = As[shape](docvalue.ObjectValue(obj))
	require.NoError(t, err)
	r, ok := got.(rect)
	require.True(t, ok, "expected rect, got %T", got)
	assert.Equal(t, 12.0, r.area())

	// A shape matching no derived type is a nil base, not an error.
	obj = docvalue.NewObject()
	obj.Set("side", docvalue.Float(1))
	got, err = As[shape](docvalue.ObjectValue(obj))
	require.NoError(t, err)
	assert.Nil(t, got)

	// Encode dispatches on the concrete type.
	v, err := ToValue(struct{ S shape }{S: circle{Radius: 5}})
	require.NoError(t, err)
	inner, err := v.Object()
	require.NoError(t, err)
	sv, ok := inner.Get("S")
	require.True(t, ok)
	svObj, err := sv.Object()
	require.NoError(t, err)
	_, hasRadius := svObj.Get("radius")
	assert.True(t, hasRadius)
}

type book struct {
	Author string
	Title  string
	Price  float64
}

func registerBook() {
	Struct[book]("Book").
		Fields(
			Field("author", func(b *book) *string { return &b.Author }),
			Field("title", func(b *book) *string { return &b.Title }),
			Field("price", func(b *book) *float64 { return &b.Price }),
		).
		Register()
}

func TestBookScenario(t *testing.T) {
	registerBook()

	in := book{Author: "Haruki Murakami", Title: "Kafka on the Shore", Price: 25.17}
	v, err := ToValue(in)
	require.NoError(t, err)

	back, err := As[book](v)
	require.NoError(t, err)
	assert.Equal(t, in.Author, back.Author)
	assert.Equal(t, in.Title, back.Title)
	assert.InDelta(t, in.Price, back.Price, 0.001)

	obj := docvalue.NewObject()
	obj.Set("author", docvalue.String(in.Author))
	obj.Set("title", docvalue.String(in.Title))
	_, err = As[book](docvalue.ObjectValue(obj))
	require.Error(t, err)
	assert.Equal(t, docvalue.MissingRequiredMember, docvalue.KindOf(err))
	assert.Contains(t, err.Error(), "price")
}
