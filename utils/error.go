package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorInvalidTransition = errors.New("invalid order state transition")

var ErrorOrderImmutable = errors.New("completed order cannot be modified")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
