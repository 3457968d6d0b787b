package core

import "github.com/google/uuid"

// ID identifies engine objects across subsystems, such as volumes registered
// with the frame scheduler.
type ID uuid.UUID

var NilID = ID(uuid.Nil)

func NewID() ID {
	return ID(uuid.New())
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) IsNil() bool {
	return id == NilID
}
