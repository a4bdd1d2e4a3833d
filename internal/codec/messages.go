package codec

import "fmt"

// Vector3 mirrors geometry_msgs/Vector3.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Twist mirrors geometry_msgs/Twist.
type Twist struct {
	Linear  Vector3
	Angular Vector3
}

// TwistBodySize is the encoded body size of a Twist: six float64, no padding.
const TwistBodySize = 48

// Time mirrors builtin_interfaces/Time.
type Time struct {
	Sec     int32
	Nanosec uint32
}

// Log mirrors rcl_interfaces/Log, the record published on /rosout.
type Log struct {
	Stamp    Time
	Level    uint8
	Name     string
	Msg      string
	File     string
	Function string
	Line     uint32
}

// String renders the record the way the bridge prints it.
func (l Log) String() string {
	return fmt.Sprintf("[%d.%d] [%s]: %s", l.Stamp.Sec, l.Stamp.Nanosec, l.Name, l.Msg)
}

func (v Vector3) encode(e *Encoder) {
	e.PutFloat64(v.X)
	e.PutFloat64(v.Y)
	e.PutFloat64(v.Z)
}

func (v *Vector3) decode(d *Decoder) (err error) {
	if v.X, err = d.ReadFloat64(); err != nil {
		return err
	}
	if v.Y, err = d.ReadFloat64(); err != nil {
		return err
	}
	v.Z, err = d.ReadFloat64()
	return err
}

// MarshalTwist encodes t as a CDR_LE payload.
func MarshalTwist(t Twist) []byte {
	e := NewEncoder(TwistBodySize)
	t.Linear.encode(e)
	t.Angular.encode(e)
	return e.Bytes()
}

// UnmarshalTwist decodes a Twist payload.
func UnmarshalTwist(payload []byte) (Twist, error) {
	var t Twist
	d, err := NewDecoder(payload)
	if err != nil {
		return t, err
	}
	if err := t.Linear.decode(d); err != nil {
		return t, fmt.Errorf("decode twist linear: %w", err)
	}
	if err := t.Angular.decode(d); err != nil {
		return t, fmt.Errorf("decode twist angular: %w", err)
	}
	return t, nil
}

// MarshalLog encodes l as a CDR_LE payload.
func MarshalLog(l Log) []byte {
	e := NewEncoder(64 + len(l.Name) + len(l.Msg) + len(l.File) + len(l.Function))
	e.PutInt32(l.Stamp.Sec)
	e.PutUint32(l.Stamp.Nanosec)
	e.PutUint8(l.Level)
	e.PutString(l.Name)
	e.PutString(l.Msg)
	e.PutString(l.File)
	e.PutString(l.Function)
	e.PutUint32(l.Line)
	return e.Bytes()
}

// UnmarshalLog decodes a Log payload.
func UnmarshalLog(payload []byte) (Log, error) {
	var l Log
	d, err := NewDecoder(payload)
	if err != nil {
		return l, err
	}
	if l.Stamp.Sec, err = d.ReadInt32(); err != nil {
		return l, fmt.Errorf("decode log stamp: %w", err)
	}
	if l.Stamp.Nanosec, err = d.ReadUint32(); err != nil {
		return l, fmt.Errorf("decode log stamp: %w", err)
	}
	if l.Level, err = d.ReadUint8(); err != nil {
		return l, fmt.Errorf("decode log level: %w", err)
	}
	fields := []struct {
		name string
		dst  *string
	}{
		{"name", &l.Name},
		{"msg", &l.Msg},
		{"file", &l.File},
		{"function", &l.Function},
	}
	for _, f := range fields {
		if *f.dst, err = d.ReadString(); err != nil {
			return l, fmt.Errorf("decode log %s: %w", f.name, err)
		}
	}
	if l.Line, err = d.ReadUint32(); err != nil {
		return l, fmt.Errorf("decode log line: %w", err)
	}
	return l, nil
}
