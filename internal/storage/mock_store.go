package storage

import (
	"io"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(content io.Reader, fileName string, declaredMIME string) (string, error) {
	args := m.Called(content, fileName, declaredMIME)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Open(ref string) (io.ReadCloser, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStore) Delete(ref string) error {
	args := m.Called(ref)
	return args.Error(0)
}
