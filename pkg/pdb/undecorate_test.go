package pdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUndecorate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"NtCreateFile", "NtCreateFile"},
		{"_NtClose@4", "NtClose"},
		{"@KfRaiseIrql@4", "KfRaiseIrql"},
		{"_plain", "_plain"},
		{"_bad@x", "_bad@x"},
		{"__imp_NtClose", "__imp_NtClose"},
		{"__imp__NtClose@4", "__imp_NtClose"},
		{"?Foo@@YAXXZ", "Foo"},
		{"?Foo@Bar@@QEAAXXZ", "Bar::Foo"},
		{"?Run@Inner@Outer@@QEAAHXZ", "Outer::Inner::Run"},
		{"??0Widget@@QEAA@XZ", "Widget::Widget"},
		{"??1Widget@@QEAA@XZ", "Widget::~Widget"},
		{"??4Widget@@QEAAAEAV0@AEBV0@@Z", "Widget::operator="},
		{"??_7Widget@@6B@", "Widget::`vftable'"},
		{"??$max@H@std@@YAHHH@Z", "std::max"},
		{"?g_count@@3HA", "g_count"},
		{"?", "?"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Undecorate(tt.in))
		})
	}
}
