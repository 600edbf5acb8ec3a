package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/pkg/host"
)

func TestParamMarshal(t *testing.T) {
	tests := []struct {
		name    string
		param   Param
		want    interface{}
		wantErr bool
	}{
		{name: "string", param: Param{Kind: KindString, Value: "hi"}, want: "hi"},
		{name: "int", param: Param{Kind: KindInt, Value: 7}, want: 7},
		{name: "int from integral float", param: Param{Kind: KindInt, Value: 7.0}, want: 7},
		{name: "int from fraction", param: Param{Kind: KindInt, Value: 7.5}, wantErr: true},
		{name: "int from text", param: Param{Kind: KindInt, Value: " 12 "}, want: 12},
		{name: "float from int", param: Param{Kind: KindFloat, Value: 3}, want: 3.0},
		{name: "bool", param: Param{Kind: KindBool, Value: true}, want: true},
		{name: "bool from text", param: Param{Kind: KindBool, Value: "false"}, want: false},
		{name: "vector from list", param: Param{Kind: KindVector3, Value: []interface{}{1, 2.5, -3}}, want: host.V3(1, 2.5, -3)},
		{name: "vector from map", param: Param{Kind: KindVector3, Value: map[string]interface{}{"x": 1, "y": 0, "z": 2}}, want: host.V3(1, 0, 2)},
		{name: "vector from text", param: Param{Kind: KindVector3, Value: "1, 2, 3"}, want: host.V3(1, 2, 3)},
		{name: "vector wrong arity", param: Param{Kind: KindVector3, Value: []interface{}{1, 2}}, wantErr: true},
		{name: "string from int", param: Param{Kind: KindString, Value: 3}, wantErr: true},
		{name: "unknown kind", param: Param{Kind: "quaternion", Value: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.param.Marshal()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Interface())
			assert.Equal(t, tt.param.Kind.GoType(), v.Type())
		})
	}
}

func TestParseParam(t *testing.T) {
	p, err := ParseParam("pos:vector3=1,2,3")
	require.NoError(t, err)
	assert.Equal(t, Param{Name: "pos", Kind: KindVector3, Value: "1,2,3"}, p)

	p, err = ParseParam("INT=5")
	require.NoError(t, err)
	assert.Equal(t, KindInt, p.Kind)
	assert.Empty(t, p.Name)

	_, err = ParseParam("n:int")
	assert.Error(t, err)
	_, err = ParseParam("n:matrix=1")
	assert.Error(t, err)
	_, err = ParseParam("n:int=abc")
	assert.Error(t, err)
}
