package jsonv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Kinds(t *testing.T) {
	v, err := Parse([]byte(`{"a":1,"b":"x","c":true,"d":null,"e":[1,2],"f":{"g":1.5}}`))
	require.NoError(t, err)

	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, v.Keys())

	a, _ := v.Get("a")
	n, ok := a.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 1.0, n)

	d, ok := v.Get("d")
	assert.True(t, ok)
	assert.True(t, d.IsNull())

	e, _ := v.Get("e")
	assert.Len(t, e.Elems(), 2)

	g, ok := v.Path("f", "g")
	require.True(t, ok)
	gn, _ := g.AsNumber()
	assert.Equal(t, 1.5, gn)
}

func TestParse_RejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestMarshalJSON_SortedAndCompact(t *testing.T) {
	v := MustParse(`{"z":1,"a":{"y":[true,null],"b":"s"},"n":2.5}`)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":"s","y":[true,null]},"n":2.5,"z":1}`, string(data))
}

func TestUnmarshalJSON_InStruct(t *testing.T) {
	var holder struct {
		Settings Value `json:"settings"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"settings":{"number_of_shards":"1"}}`), &holder))
	shards, ok := holder.Settings.Get("number_of_shards")
	require.True(t, ok)
	s, _ := shards.AsString()
	assert.Equal(t, "1", s)
}

func TestEqual(t *testing.T) {
	a := MustParse(`{"x":[1,2],"y":{"z":"q"}}`)
	b := MustParse(`{"y":{"z":"q"},"x":[1,2]}`)
	c := MustParse(`{"y":{"z":"q"},"x":[2,1]}`)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, String("1").Equal(Number(1)))
	assert.True(t, Null().Equal(Value{}))
}

func TestWithWithout_DoNotMutate(t *testing.T) {
	base := MustParse(`{"a":1}`)
	added := base.With("b", Bool(true))
	removed := added.Without("a")

	assert.Equal(t, []string{"a"}, base.Keys())
	assert.Equal(t, []string{"a", "b"}, added.Keys())
	assert.Equal(t, []string{"b"}, removed.Keys())
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]interface{}{
		"type":   "keyword",
		"count":  3,
		"fields": []interface{}{"a", 1.5, nil},
	})
	require.NoError(t, err)
	assert.True(t, v.Equal(MustParse(`{"type":"keyword","count":3,"fields":["a",1.5,null]}`)))

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	v := Coerce(MustParse(`{"shards":"1","replicas":"0","ratio":"0.5","flag":"true","off":"false",
		"name":"products","zip":"007","tags":["1","x"]}`))

	assert.True(t, v.Equal(MustParse(`{"shards":1,"replicas":0,"ratio":0.5,"flag":true,"off":false,
		"name":"products","zip":"007","tags":[1,"x"]}`)))
}

func TestMerge(t *testing.T) {
	base := MustParse(`{"properties":{"id":{"type":"keyword","store":true}},"dynamic":"strict"}`)
	patch := MustParse(`{"properties":{"price":{"type":"float"}},"dynamic":false}`)

	merged := Merge(base, patch)
	assert.True(t, merged.Equal(MustParse(`{"properties":{"id":{"type":"keyword","store":true},
		"price":{"type":"float"}},"dynamic":false}`)))

	// scalars and arrays replace
	assert.True(t, Merge(MustParse(`[1,2]`), MustParse(`[3]`)).Equal(MustParse(`[3]`)))
}

func TestString_Number(t *testing.T) {
	assert.Equal(t, "1", Number(1).String())
	assert.Equal(t, "0.25", Number(0.25).String())
	assert.Equal(t, `"x"`, String("x").String())
	assert.Equal(t, "null", Null().String())
}

func TestNumber_LargeIntegerRoundTrip(t *testing.T) {
	v := MustParse(`{"null_value":9007199254740993}`)
	assert.Equal(t, `{"null_value":9007199254740993}`, v.String())

	data, err := json.Marshal(v.Any())
	require.NoError(t, err)
	assert.Equal(t, `{"null_value":9007199254740993}`, string(data))

	// both integers share one float64 value
	assert.False(t, MustParse(`9007199254740993`).Equal(MustParse(`9007199254740992`)))
	assert.True(t, MustParse(`9007199254740993`).Equal(MustParse(`9007199254740993`)))
	assert.True(t, Coerce(String("9007199254740993")).Equal(MustParse(`9007199254740993`)))
	assert.Equal(t, "9007199254740993", Coerce(String("9007199254740993")).String())

	assert.True(t, MustParse(`1`).Equal(MustParse(`1.0`)))
	assert.True(t, MustParse(`2`).Equal(Number(2)))
}
