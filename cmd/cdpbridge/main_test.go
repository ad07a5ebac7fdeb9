package main

import (
	"errors"
	"testing"
)

func TestFormatCobraError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "mutually exclusive flags",
			err:  errors.New("if any flags in the group [debug verbosity] are set none of the others can be; [debug verbosity] were all set"),
			want: "--debug and --verbosity cannot be used together",
		},
		{
			name: "other errors pass through",
			err:  errors.New(`unknown command "nope" for "cdpbridge"`),
			want: `unknown command "nope" for "cdpbridge"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCobraError(tt.err); got != tt.want {
				t.Errorf("formatCobraError() = %q, want %q", got, tt.want)
			}
		})
	}
}
