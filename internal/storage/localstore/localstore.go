package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ошибки уровня хранилища
// ErrStorageFull сигнализирует о невозможности записи (переполнение/права),
// ErrCorruptState — о нечитаемом содержимом под ключом
var (
	ErrStorageFull  = errors.New("storage is full or not writable")
	ErrCorruptState = errors.New("stored state is corrupt")
)

// Store — файловый key-value адаптер со снимками в формате JSON
// играет роль браузерного localStorage: один каталог, один файл на ключ,
// никакого сетевого ввода-вывода
type Store struct {
	dir string
}

// New создаёт адаптер поверх указанного каталога
// каталог создаётся при необходимости
func New(dir string) (*Store, error) {
	const op = "storage.localstore.New"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create storage dir: %w", op, err)
	}

	return &Store{dir: dir}, nil
}

// path возвращает путь файла для ключа
// ключи у нас фиксированные ("dpt_basket" и т.п.), но подчищаем разделители,
// чтобы ключ не мог выйти за пределы каталога
func (s *Store) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}

// Save сериализует значение и атомарно записывает его под ключом
// запись идёт во временный файл с последующим переименованием,
// частичная запись невозможна
func (s *Store) Save(key string, value any) error {
	const op = "storage.localstore.Save"

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal value for key %q: %w", op, key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%s: failed to write key %q: %w", op, key, ErrStorageFull)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		// подчищаем временный файл, результат неважен
		_ = os.Remove(tmp)
		return fmt.Errorf("%s: failed to commit key %q: %w", op, key, ErrStorageFull)
	}

	return nil
}

// Load читает значение по ключу в dest
// возвращает (false, nil), если ключа нет — dest остаётся значением по умолчанию
// возвращает (false, ErrCorruptState), если содержимое не разбирается
func (s *Store) Load(key string, dest any) (bool, error) {
	const op = "storage.localstore.Load"

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%s: failed to read key %q: %w", op, key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("%s: key %q: %w", op, key, ErrCorruptState)
	}

	return true, nil
}

// Remove удаляет ключ; отсутствие ключа ошибкой не считается
func (s *Store) Remove(key string) error {
	const op = "storage.localstore.Remove"

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: failed to remove key %q: %w", op, key, err)
	}
	return nil
}

// Clear удаляет все ключи адаптера
func (s *Store) Clear() error {
	const op = "storage.localstore.Clear"

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%s: failed to list storage dir: %w", op, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("%s: failed to remove %q: %w", op, e.Name(), err)
		}
	}
	return nil
}

// Available выполняет пробную запись и удаление
// так оригинальный клиент проверял доступность localStorage
func (s *Store) Available() bool {
	const probe = "__storage_test__"

	if err := s.Save(probe, probe); err != nil {
		return false
	}
	return s.Remove(probe) == nil
}
