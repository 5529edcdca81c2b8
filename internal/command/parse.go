package command

import (
	"strconv"
	"strings"
)

// Kind classifies a command line.
type Kind uint8

const (
	SetParameter Kind = iota + 1
	Connect
	Disconnect
	Calibrate
)

// Parameter names accepted in "<Name>=<float>" lines.
const (
	ParamKp     = "Kp"
	ParamKi     = "Ki"
	ParamKd     = "Kd"
	ParamNf     = "Nf"
	ParamDf     = "Df"
	ParamOffset = "Of"
)

var parameters = map[string]struct{}{
	ParamKp:     {},
	ParamKi:     {},
	ParamKd:     {},
	ParamNf:     {},
	ParamDf:     {},
	ParamOffset: {},
}

// Command is one parsed line.
type Command struct {
	Kind  Kind
	Name  string
	Value float64
}

// Parse reads one line without its terminator. Lines that are not a known
// literal or a two-letter parameter assignment are rejected.
func Parse(line string) (Command, bool) {
	line = strings.TrimRight(line, "\r\n")

	switch line {
	case "CONN":
		return Command{Kind: Connect}, true
	case "DISC":
		return Command{Kind: Disconnect}, true
	case "CALB":
		return Command{Kind: Calibrate}, true
	}

	if len(line) < 4 || line[2] != '=' || !isLetter(line[0]) || !isLetter(line[1]) {
		return Command{}, false
	}

	name := line[:2]
	if _, ok := parameters[name]; !ok {
		return Command{}, false
	}

	v, err := strconv.ParseFloat(line[3:], 64)
	if err != nil {
		return Command{}, false
	}

	return Command{Kind: SetParameter, Name: name, Value: v}, true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
