package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/ocr"
	"github.com/lomehong/ldg/pkg/validate"
)

// Manifest 一次运行的持久化记录，控制台按运行ID检索
type Manifest struct {
	RunID      string                 `json:"run_id"`
	Kind       string                 `json:"kind"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Succeeded  bool                   `json:"succeeded"`
	Summary    map[string]interface{} `json:"summary,omitempty"`
	Artifacts  map[string]string      `json:"artifacts,omitempty"`
}

// NewValidateManifest 由校验结果构建运行记录
func NewValidateManifest(r *validate.Report, artifacts map[string]string) *Manifest {
	return &Manifest{
		RunID:      r.Summary.RunID,
		Kind:       "validate",
		StartedAt:  r.Summary.StartedAt,
		FinishedAt: r.Summary.StartedAt.Add(r.Summary.Duration),
		Succeeded:  len(r.Mismatches) == 0,
		Summary: map[string]interface{}{
			"rows":        r.Summary.Rows,
			"ocr_calls":   r.Summary.OCRCalls,
			"matches":     r.Summary.Matches,
			"mismatched":  r.Summary.Mismatched,
			"missing_pdf": r.Summary.MissingPDF,
			"ocr_errors":  r.Summary.OCRErrors,
			"mismatches":  len(r.Mismatches),
			"duration":    r.Summary.Duration.String(),
		},
		Artifacts: artifacts,
	}
}

// NewOCRManifest 由批量识别结果构建运行记录
func NewOCRManifest(startedAt time.Time, result *ocr.BatchResult) *Manifest {
	return &Manifest{
		RunID:      uuid.New().String(),
		Kind:       "ocr",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(result.Duration),
		Succeeded:  result.Failed == 0,
		Summary: map[string]interface{}{
			"total":     result.Total,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"duration":  result.Duration.String(),
		},
		Artifacts: map[string]string{"output_dir": result.OutputDir},
	}
}

// Store 运行记录存储，每次运行一个JSON文件
type Store struct {
	logger hclog.Logger
	dir    string
}

// NewStore 创建运行记录存储
func NewStore(logger hclog.Logger, dir string) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{logger: logger, dir: dir}
}

// Dir 返回存储目录
func (s *Store) Dir() string {
	return s.dir
}

// Save 写出运行记录，返回文件路径
func (s *Store) Save(manifest *Manifest) (string, error) {
	if manifest == nil || manifest.RunID == "" {
		return "", errors.New(errors.ErrorTypeValidation, errors.CodeInternal, "运行记录缺少ID")
	}
	if err := validateRunID(manifest.RunID); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"创建运行记录目录失败: "+s.dir)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "序列化运行记录失败")
	}

	path := filepath.Join(s.dir, manifest.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"写出运行记录失败: "+path)
	}

	s.logger.Debug("运行记录已保存", "run_id", manifest.RunID, "path", path)
	return path, nil
}

// List 返回全部运行记录，按开始时间倒序。
// 解析失败的文件记录告警后跳过
func (s *Store) List() ([]*Manifest, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal, "枚举运行记录失败")
	}

	manifests := make([]*Manifest, 0, len(files))
	for _, file := range files {
		manifest, err := readManifest(file)
		if err != nil {
			s.logger.Warn("运行记录无法解析，已跳过", "path", file, "error", err)
			continue
		}
		manifests = append(manifests, manifest)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].StartedAt.After(manifests[j].StartedAt)
	})
	return manifests, nil
}

// Load 按运行ID读取运行记录
func (s *Store) Load(runID string) (*Manifest, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, runID+".json")
	manifest, err := readManifest(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, errors.CodeRunNotFound,
				"运行记录不存在: %s", runID)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeInternal,
			"读取运行记录失败: "+path)
	}
	return manifest, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// validateRunID 拒绝带路径分隔符的运行ID，运行记录只能落在存储目录内
func validateRunID(runID string) error {
	if runID == "" || strings.ContainsAny(runID, `/\`) || strings.Contains(runID, "..") {
		return errors.Newf(errors.ErrorTypeValidation, errors.CodeRunNotFound, "非法的运行ID: %q", runID)
	}
	return nil
}
