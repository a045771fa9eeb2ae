package core

import "barocode-go/bus"

func topicConfigHAL() bus.Topic { return bus.T("config", "hal") }
func topicHALState() bus.Topic  { return bus.T("hal", "state") }

// hal/cap/<domain>/<kind>/<name>/...
func CapBase(domain, kind, name string) bus.Topic { return bus.T("hal", "cap", domain, kind, name) }

func CapInfo(domain, kind, name string) bus.Topic   { return CapBase(domain, kind, name).Append("info") }
func CapStatus(domain, kind, name string) bus.Topic { return CapBase(domain, kind, name).Append("status") }
func CapValue(domain, kind, name string) bus.Topic  { return CapBase(domain, kind, name).Append("value") }

// hal/cap/<domain>/<kind>/<name>/control/<verb>
func CapCtrl(domain, kind, name, verb string) bus.Topic {
	return CapBase(domain, kind, name).Append("control", verb)
}

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return bus.T("hal", "cap", bus.SingleWild, bus.SingleWild, bus.SingleWild, "control", bus.SingleWild)
}
