package preferences

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agentstation/labsync/pkg/errors"
)

// ParseAssignments turns "group.field=value" arguments into patches.
// Paths under toasts and bell build the notification patch; every other path
// (for example error_indicator.show_icon or show_agent_indicators) builds the
// canvas patch. Unknown fields are rejected.
func ParseAssignments(args []string) (NotificationSettingsPatch, CanvasSettingsPatch, error) {
	var np NotificationSettingsPatch
	var cp CanvasSettingsPatch

	notif := map[string]any{}
	canvas := map[string]any{}
	for _, arg := range args {
		path, raw, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return np, cp, errors.NewValidationError("assignment", arg, "expected path=value")
		}
		parts := strings.Split(path, ".")
		target := canvas
		if parts[0] == "toasts" || parts[0] == "bell" {
			target = notif
		}
		if len(parts) > 2 {
			return np, cp, errors.NewValidationError(path, raw, "path is too deep")
		}
		if len(parts) == 2 {
			group, _ := target[parts[0]].(map[string]any)
			if group == nil {
				group = map[string]any{}
				target[parts[0]] = group
			}
			group[parts[1]] = parseScalar(raw)
			continue
		}
		target[parts[0]] = parseScalar(raw)
	}

	if err := decodeStrict(notif, &np); err != nil {
		return np, cp, err
	}
	if err := decodeStrict(canvas, &cp); err != nil {
		return np, cp, err
	}
	return np, cp, nil
}

func parseScalar(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return raw
}

func decodeStrict(src map[string]any, dst any) error {
	if len(src) == 0 {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return errors.WrapParse("json", "assignment", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError("assignment", string(data), err.Error())
	}
	return nil
}
